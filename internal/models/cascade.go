package models

import "time"

// InitialFailure seeds a cascade simulation.
type InitialFailure struct {
	Component string
	Type      FaultType
}

// FailureNode is one component failure inside a cascade run. Parent linkage is
// by id within the same cascade, never a shared pointer.
type FailureNode struct {
	ID               string
	Component        string
	FailureType      FaultType
	ParentID         string
	Depth            int
	Probability      float64
	ImpactScore      float64
	RecoveryPriority int
	FailedAt         time.Time
}

// PropagationRule governs whether a failure type spreads from one component
// class to another. Rules are data; the simulator interprets them.
type PropagationRule struct {
	SourceType         FaultType     `yaml:"source_type"`
	TargetType         string        `yaml:"target_type"`
	Probability        float64       `yaml:"probability"`
	Delay              time.Duration `yaml:"delay"`
	SeverityMultiplier float64       `yaml:"severity_multiplier"`
	Bidirectional      bool          `yaml:"bidirectional"`
}

// CascadeEvent records one entry in a cascade timeline.
type CascadeEvent struct {
	Time      time.Time
	Component string
	Depth     int
	Event     string
}

// RecoveryStep describes how one component recovers after a cascade.
type RecoveryStep struct {
	Component string
	Strategy  string
	Duration  time.Duration
}

// RecoveryResult summarises a simulated recovery for a cascade.
type RecoveryResult struct {
	CascadeID     string
	Steps         []RecoveryStep
	TotalDuration time.Duration
	Parallel      bool
	CompletedAt   time.Time
}

// CascadeModel is the full record of one cascade simulation.
type CascadeModel struct {
	ID              string
	InitialFailure  InitialFailure
	Rules           []PropagationRule
	FailureSequence []FailureNode
	Timeline        []CascadeEvent
	BlastRadius     int
	RecoveryOrder   []string
	StartedAt       time.Time
	EndedAt         *time.Time
	Recovery        *RecoveryResult
}

// AffectedComponents returns the distinct components in failure order.
func (c *CascadeModel) AffectedComponents() []string {
	seen := make(map[string]struct{}, len(c.FailureSequence))
	components := make([]string, 0, len(c.FailureSequence))
	for _, node := range c.FailureSequence {
		if _, ok := seen[node.Component]; ok {
			continue
		}
		seen[node.Component] = struct{}{}
		components = append(components, node.Component)
	}
	return components
}

// Node returns the failure node with the given id, or nil.
func (c *CascadeModel) Node(id string) *FailureNode {
	for i := range c.FailureSequence {
		if c.FailureSequence[i].ID == id {
			return &c.FailureSequence[i]
		}
	}
	return nil
}
