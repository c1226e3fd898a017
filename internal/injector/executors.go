package injector

import (
	"sync"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Backend is the pluggable fault-execution contract. The hosting application
// supplies a real implementation to perturb live infrastructure; the built-in
// simulated backend only records what would have happened, which is enough
// for scoring runs. Release must be idempotent.
type Backend interface {
	Execute(fault models.Fault, params map[string]float64) (map[string]float64, error)
	Release(fault models.Fault) error
}

// paramFunc translates a severity into concrete effect parameters for one
// fault type. The table is effectively immutable after startup.
type paramFunc func(models.Severity) map[string]float64

var executorTable = map[models.FaultType]paramFunc{
	models.FaultNetworkLatency:     scaled("latency_ms", 100, 500, 2000, 10000),
	models.FaultNetworkPartition:   scaled("partition_pct", 25, 50, 75, 100),
	models.FaultProcessCrash:       scaled("kill_count", 1, 2, 4, 8),
	models.FaultMemoryPressure:     scaled("allocated_mb", 256, 1024, 4096, 8192),
	models.FaultCPUThrottle:        scaled("cpu_threads", 1, 2, 4, 8),
	models.FaultDiskFailure:        scaled("error_rate", 0.05, 0.2, 0.5, 1.0),
	models.FaultByzantine:          scaled("deviation_rate", 0.02, 0.1, 0.3, 0.6),
	models.FaultClockSkew:          scaled("skew_ms", 500, 5000, 60000, 600000),
	models.FaultResourceExhaustion: scaled("connections", 100, 1000, 5000, 20000),
	models.FaultDataCorruption:     scaled("corruption_rate", 0.01, 0.05, 0.2, 0.5),
	models.FaultThunderingHerd:     scaled("burst_rps", 500, 2000, 10000, 50000),
}

func scaled(key string, low, medium, high, critical float64) paramFunc {
	return func(s models.Severity) map[string]float64 {
		value := low
		switch s {
		case models.SeverityMedium:
			value = medium
		case models.SeverityHigh:
			value = high
		case models.SeverityCritical:
			value = critical
		}
		return map[string]float64{key: value}
	}
}

// severityParams returns effect parameters for a fault type and severity, or
// nil for unknown types.
func severityParams(ft models.FaultType, s models.Severity) map[string]float64 {
	fn, ok := executorTable[ft]
	if !ok {
		return nil
	}
	return fn(s)
}

// SimulatedBackend records effect parameters without touching anything real.
type SimulatedBackend struct {
	mu       sync.Mutex
	executed map[string]map[string]float64
}

// NewSimulatedBackend constructs the no-op scoring backend.
func NewSimulatedBackend() *SimulatedBackend {
	return &SimulatedBackend{executed: make(map[string]map[string]float64)}
}

// Execute reflects the parameters back as impact metrics. Process crashes are
// one-shot: the impact reports completion so the injector can deactivate
// immediately when no duration was requested.
func (b *SimulatedBackend) Execute(fault models.Fault, params map[string]float64) (map[string]float64, error) {
	impact := make(map[string]float64, len(params)+2)
	for k, v := range params {
		impact[k] = v
	}
	impact["impact_score"] = float64(models.SeverityRank(fault.Severity)+1) * 2.5
	if fault.Type == models.FaultProcessCrash {
		impact["completed"] = 1
	}

	b.mu.Lock()
	b.executed[fault.ID] = impact
	b.mu.Unlock()
	return impact, nil
}

// Release forgets the recorded execution; calling it twice is harmless.
func (b *SimulatedBackend) Release(fault models.Fault) error {
	b.mu.Lock()
	delete(b.executed, fault.ID)
	b.mu.Unlock()
	return nil
}

// Executed reports whether the backend still holds state for a fault.
func (b *SimulatedBackend) Executed(faultID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.executed[faultID]
	return ok
}
