package chaosmetrics

import (
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Domain event wrappers. Each translates one chaos event into the underlying
// metric points consumed by dashboards and the resilience analyzer.

// RecordFault emits the injection metrics for a newly active fault.
func (s *Store) RecordFault(fault models.Fault) {
	tags := map[string]string{
		"type":     string(fault.Type),
		"target":   fault.Target,
		"severity": string(fault.Severity),
	}
	s.Record("fault.injected", 1, tags)
	s.Record("fault.duration", float64(fault.Duration.Milliseconds()), tags)
	if score, ok := fault.ImpactMetrics["impact_score"]; ok {
		s.Record("fault.impact_score", score, tags)
	}
}

// RecordFaultCleared emits clear metrics, including how long the fault was live.
func (s *Store) RecordFaultCleared(fault models.Fault) {
	tags := map[string]string{
		"type":   string(fault.Type),
		"target": fault.Target,
	}
	s.Record("fault.cleared", 1, tags)
	if fault.DeactivatedAt != nil {
		active := fault.DeactivatedAt.Sub(fault.ActivatedAt)
		s.Record("fault.active_ms", float64(active.Milliseconds()), tags)
	}
}

// RecordCascade emits the blast radius and depth reached by a cascade run.
func (s *Store) RecordCascade(cascade models.CascadeModel) {
	tags := map[string]string{
		"initial": cascade.InitialFailure.Component,
		"type":    string(cascade.InitialFailure.Type),
	}
	s.Record("cascade.blast_radius", float64(cascade.BlastRadius), tags)
	maxDepth := 0
	for _, node := range cascade.FailureSequence {
		if node.Depth > maxDepth {
			maxDepth = node.Depth
		}
	}
	s.Record("cascade.depth", float64(maxDepth), tags)
}

// RecordRecovery emits the outcome of one component recovery.
func (s *Store) RecordRecovery(component string, duration time.Duration, ok bool) {
	tags := map[string]string{"component": component}
	success := 0.0
	if ok {
		success = 1.0
	}
	s.Record("recovery.duration", float64(duration.Milliseconds()), tags)
	s.Record("recovery.success", success, tags)
}

// RecordExperiment emits the terminal status of an experiment.
func (s *Store) RecordExperiment(exp models.Experiment) {
	tags := map[string]string{
		"name":   exp.Name,
		"status": string(exp.Status),
	}
	success := 0.0
	if exp.Status == models.StatusSucceeded {
		success = 1.0
	}
	s.Record("experiment.completed", 1, tags)
	s.Record("experiment.success", success, tags)
	if exp.EndedAt != nil && !exp.StartedAt.IsZero() {
		s.Record("experiment.duration", float64(exp.EndedAt.Sub(exp.StartedAt).Milliseconds()), tags)
	}
}
