package orchestrator

import (
	"fmt"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Templates are ready-made experiments parameterised only by target. Each
// ships with auto-rollback on so a failed run leaves nothing behind.

// DatabaseFailoverExperiment crashes a database and verifies dependents
// recover within the criteria window.
func DatabaseFailoverExperiment(target string) models.Experiment {
	return models.Experiment{
		Name:       fmt.Sprintf("database-failover-%s", target),
		Type:       "database_failover",
		Hypothesis: "dependents survive a database crash via failover",
		Steps: []models.ExperimentStep{
			{
				ID:     "crash-primary",
				Action: models.ActionInjectFault,
				Target: target,
				Params: models.StepParams{
					FaultType: models.FaultProcessCrash,
					Severity:  models.SeverityCritical,
				},
				Rollback: models.RollbackClearFaults,
			},
			{
				ID:       "measure-blast",
				Action:   models.ActionMeasureBlastRadius,
				Target:   target,
				Rollback: models.RollbackNone,
			},
			{
				ID:       "verify-recovery",
				Action:   models.ActionVerifyRecovery,
				Target:   target,
				Duration: 2 * time.Second,
				Rollback: models.RollbackClearFaults,
			},
		},
		SuccessCriteria: map[string]float64{
			"active_on_target": 0,
			"blast_risk":       1,
		},
		AutoRollback: true,
	}
}

// NetworkPartitionExperiment isolates a component, checks consistency while
// partitioned, then verifies the partition heals.
func NetworkPartitionExperiment(target string, hold time.Duration) models.Experiment {
	if hold <= 0 {
		hold = 5 * time.Second
	}
	return models.Experiment{
		Name:       fmt.Sprintf("network-partition-%s", target),
		Type:       "network_partition",
		Hypothesis: "the system stays consistent through a partition and heals cleanly",
		Steps: []models.ExperimentStep{
			{
				ID:     "partition",
				Action: models.ActionCreatePartition,
				Target: target,
				Params: models.StepParams{
					Severity: models.SeverityHigh,
					Duration: hold,
				},
				Duration: hold,
				Rollback: models.RollbackHealPartition,
			},
			{
				ID:       "verify-consistency",
				Action:   models.ActionVerifyConsistency,
				Target:   target,
				Rollback: models.RollbackNone,
			},
			{
				ID:       "verify-healed",
				Action:   models.ActionVerifyRecovery,
				Target:   target,
				Rollback: models.RollbackHealPartition,
			},
		},
		SuccessCriteria: map[string]float64{
			"corrupting_faults": 0,
			"active_on_target":  0,
		},
		AutoRollback: true,
	}
}

// CascadePreventionExperiment triggers a bounded cascade and asserts the
// blast radius stays inside the given ceiling.
func CascadePreventionExperiment(target string, maxBlast float64) models.Experiment {
	if maxBlast <= 0 {
		maxBlast = 5
	}
	return models.Experiment{
		Name:       fmt.Sprintf("cascade-prevention-%s", target),
		Type:       "cascade_prevention",
		Hypothesis: "a component failure does not cascade past the containment boundary",
		Steps: []models.ExperimentStep{
			{
				ID:     "trigger-cascade",
				Action: models.ActionTriggerCascade,
				Target: target,
				Params: models.StepParams{
					FaultType: models.FaultProcessCrash,
					MaxDepth:  3,
				},
				Rollback: models.RollbackClearFaults,
			},
			{
				ID:       "verify-recovery",
				Action:   models.ActionVerifyRecovery,
				Target:   target,
				Rollback: models.RollbackClearFaults,
			},
		},
		SuccessCriteria: map[string]float64{
			"blast_radius":     maxBlast,
			"active_on_target": 0,
		},
		AutoRollback: true,
	}
}
