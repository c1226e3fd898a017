package orchestrator

import (
	"fmt"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// validateExperiment rejects malformed experiments before anything runs.
func validateExperiment(exp models.Experiment) error {
	if exp.Name == "" {
		return &utils.ValidationError{Field: "name", Msg: "experiment name is required"}
	}
	if len(exp.Steps) == 0 {
		return &utils.ValidationError{Field: "steps", Msg: "experiment has no steps"}
	}
	seen := make(map[string]struct{}, len(exp.Steps))
	for n, step := range exp.Steps {
		if step.ID == "" {
			return &utils.ValidationError{Field: "steps", Msg: fmt.Sprintf("step %d has no id", n)}
		}
		if _, dup := seen[step.ID]; dup {
			return &utils.ValidationError{Field: "steps", Msg: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		seen[step.ID] = struct{}{}
		switch step.Action {
		case models.ActionInjectFault:
			if step.Params.FaultType == "" {
				return &utils.ValidationError{Field: "steps", Msg: fmt.Sprintf("step %q injects without a fault type", step.ID)}
			}
			if step.Target == "" {
				return &utils.ValidationError{Field: "steps", Msg: fmt.Sprintf("step %q injects without a target", step.ID)}
			}
		case models.ActionCreatePartition, models.ActionTriggerCascade,
			models.ActionVerifyRecovery, models.ActionVerifyConsistency,
			models.ActionMeasureBlastRadius:
			if step.Target == "" {
				return &utils.ValidationError{Field: "steps", Msg: fmt.Sprintf("step %q has no target", step.ID)}
			}
		default:
			return &utils.ValidationError{Field: "steps", Msg: fmt.Sprintf("step %q has unknown action %q", step.ID, step.Action)}
		}
	}
	return nil
}

// safetyChecks gate execution on the current state of the injector and the
// protected-target list. They run before any side effect.
func (o *Orchestrator) safetyChecks(exp models.Experiment) error {
	if !o.injector.Enabled() {
		return &utils.SafetyCheckError{Check: "injection_enabled", Reason: "fault injection is disabled"}
	}

	protected := make(map[string]struct{}, len(o.cfg.ProtectedTargets))
	for _, target := range o.cfg.ProtectedTargets {
		protected[target] = struct{}{}
	}
	injecting := 0
	for _, step := range exp.Steps {
		if _, hit := protected[step.Target]; hit {
			return &utils.SafetyCheckError{
				Check:  "protected_target",
				Reason: fmt.Sprintf("target %q is protected", step.Target),
			}
		}
		if step.Action == models.ActionInjectFault || step.Action == models.ActionCreatePartition {
			injecting++
		}
	}

	if o.injector.ActiveCount()+injecting > o.cfg.MaxActiveFaults {
		return &utils.SafetyCheckError{
			Check:  "fault_budget",
			Reason: fmt.Sprintf("%d active faults leave no headroom for %d more", o.injector.ActiveCount(), injecting),
		}
	}
	return nil
}
