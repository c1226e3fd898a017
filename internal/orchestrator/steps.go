package orchestrator

import (
	"context"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
)

// runStep dispatches one step action, holds for the step duration, and
// applies the step's validation. A nil Validate accepts any error-free run.
func (o *Orchestrator) runStep(ctx context.Context, exp models.Experiment, step models.ExperimentStep) models.StepResult {
	result := models.StepResult{StepID: step.ID, Values: make(map[string]float64)}

	switch step.Action {
	case models.ActionInjectFault:
		o.stepInject(&result, step, step.Params.FaultType)
	case models.ActionCreatePartition:
		o.stepInject(&result, step, models.FaultNetworkPartition)
	case models.ActionTriggerCascade:
		o.stepCascade(ctx, &result, step)
	case models.ActionVerifyRecovery:
		o.stepVerifyRecovery(&result, step)
	case models.ActionVerifyConsistency:
		o.stepVerifyConsistency(&result)
	case models.ActionMeasureBlastRadius:
		o.stepBlastRadius(ctx, &result, step)
	}

	if step.Duration > 0 && result.Error == "" {
		select {
		case <-ctx.Done():
			result.Error = ctx.Err().Error()
		case <-time.After(step.Duration):
		}
	}

	result.OK = result.Error == ""
	if result.OK && step.Validate != nil {
		result.OK = step.Validate(result)
		if !result.OK {
			result.Error = "step validation rejected the result"
		}
	}
	result.FinishedAt = time.Now().UTC()
	return result
}

func (o *Orchestrator) stepInject(result *models.StepResult, step models.ExperimentStep, faultType models.FaultType) {
	fault, err := o.injector.Inject(faultType, step.Target, injector.Options{
		Severity:    step.Params.Severity,
		Duration:    step.Params.Duration,
		Probability: step.Params.Probability,
	})
	if err != nil {
		result.Error = err.Error()
		return
	}
	result.FaultID = fault.ID
	result.Values["injected"] = 1
	for key, value := range fault.ImpactMetrics {
		result.Values[key] = value
	}
}

func (o *Orchestrator) stepCascade(ctx context.Context, result *models.StepResult, step models.ExperimentStep) {
	faultType := step.Params.FaultType
	if faultType == "" {
		faultType = models.FaultProcessCrash
	}
	cascade, err := o.simulator.SimulateCascade(ctx, models.InitialFailure{
		Component: step.Target,
		Type:      faultType,
	}, simulator.SimulateOptions{
		MaxDepth:    step.Params.MaxDepth,
		Probability: step.Params.Probability,
	})
	if err != nil {
		result.Error = err.Error()
		return
	}
	result.CascadeID = cascade.ID
	result.Values["blast_radius"] = float64(cascade.BlastRadius)
	maxDepth := 0
	for _, node := range cascade.FailureSequence {
		if node.Depth > maxDepth {
			maxDepth = node.Depth
		}
	}
	result.Values["cascade_depth"] = float64(maxDepth)
}

// stepVerifyRecovery passes when the target carries no active fault.
func (o *Orchestrator) stepVerifyRecovery(result *models.StepResult, step models.ExperimentStep) {
	activeOnTarget := 0
	for _, fault := range o.injector.ListActive() {
		if fault.Target == step.Target {
			activeOnTarget++
		}
	}
	result.Values["active_on_target"] = float64(activeOnTarget)
	if activeOnTarget > 0 {
		result.Error = "target still has active faults"
	}
}

// stepVerifyConsistency passes when no data-corruption fault is live anywhere.
func (o *Orchestrator) stepVerifyConsistency(result *models.StepResult) {
	corrupting := 0
	for _, fault := range o.injector.ListActive() {
		if fault.Type == models.FaultDataCorruption {
			corrupting++
		}
	}
	result.Values["corrupting_faults"] = float64(corrupting)
	if corrupting > 0 {
		result.Error = "data-corruption faults are still active"
	}
}

func (o *Orchestrator) stepBlastRadius(ctx context.Context, result *models.StepResult, step models.ExperimentStep) {
	faultType := step.Params.FaultType
	if faultType == "" {
		faultType = models.FaultTypeAll
	}
	blast, err := o.simulator.AnalyzeBlastRadius(ctx, step.Target, faultType)
	if err != nil {
		result.Error = err.Error()
		return
	}
	result.Values["blast_total"] = float64(blast.Total)
	result.Values["blast_risk"] = blast.RiskScore
	result.Values["estimated_recovery_ms"] = float64(blast.EstimatedRecovery.Milliseconds())
}
