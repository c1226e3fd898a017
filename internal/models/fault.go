package models

import "time"

// FaultType enumerates the kinds of perturbation the injector knows how to apply.
type FaultType string

const (
	FaultNetworkLatency     FaultType = "network_latency"
	FaultNetworkPartition   FaultType = "network_partition"
	FaultProcessCrash       FaultType = "process_crash"
	FaultMemoryPressure     FaultType = "memory_pressure"
	FaultCPUThrottle        FaultType = "cpu_throttle"
	FaultDiskFailure        FaultType = "disk_failure"
	FaultByzantine          FaultType = "byzantine_fault"
	FaultClockSkew          FaultType = "clock_skew"
	FaultResourceExhaustion FaultType = "resource_exhaustion"
	FaultDataCorruption     FaultType = "data_corruption"
	FaultThunderingHerd     FaultType = "thundering_herd"
)

// FaultTypeAll is the wildcard used by propagation rules to match any source type.
const FaultTypeAll FaultType = "all"

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists all levels ordered from least to most impactful.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// SeverityRank returns the ordinal position of a severity, 0 for low.
func SeverityRank(s Severity) int {
	for i, level := range Severities {
		if level == s {
			return i
		}
	}
	return 0
}

// Fault is one injected, time-bounded perturbation targeting a single component.
type Fault struct {
	ID            string
	Type          FaultType
	Target        string
	Severity      Severity
	Duration      time.Duration
	Probability   float64
	Metadata      map[string]string
	ActivatedAt   time.Time
	DeactivatedAt *time.Time
	ImpactMetrics map[string]float64
}

// Active reports whether the fault has not yet been cleared or expired.
func (f *Fault) Active() bool {
	return f.DeactivatedAt == nil
}

// ParameterRange bounds a tunable fault parameter.
type ParameterRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// FaultDefinition is an immutable catalog entry describing one fault type.
type FaultDefinition struct {
	ID          string                          `yaml:"id"`
	Name        string                          `yaml:"name"`
	Type        FaultType                       `yaml:"type"`
	Category    string                          `yaml:"category"`
	Description string                          `yaml:"description"`
	Parameters  map[string]ParameterRange       `yaml:"parameters"`
	Presets     map[Severity]map[string]float64 `yaml:"presets"`
	Impact      string                          `yaml:"impact"`
	Mitigation  string                          `yaml:"mitigation"`
	Recovery    string                          `yaml:"recovery"`
	Enabled     bool                            `yaml:"enabled"`
}
