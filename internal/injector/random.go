package injector

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// Rand is the subset of math/rand the injector draws from. It is injectable
// so tests can seed deterministic sequences.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// NewRand returns a seeded, goroutine-safe Rand.
func NewRand(seed int64) Rand {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

// InjectRandom picks a uniformly random enabled type and target, draws the
// severity from the configured weighted distribution, and injects it.
func (i *Injector) InjectRandom(opts Options) (models.Fault, error) {
	i.mu.Lock()
	enabled := i.cfg.Enabled
	targets := i.cfg.Targets
	weights := i.cfg.SeverityWeights
	i.mu.Unlock()

	if !enabled {
		return models.Fault{}, utils.ErrInjectionDisabled
	}

	types := i.candidateTypes()
	if len(types) == 0 {
		return models.Fault{}, fmt.Errorf("no enabled fault types: %w", utils.ErrUnknownFaultType)
	}
	faultType := types[i.rng.Intn(len(types))]
	target := targets[i.rng.Intn(len(targets))]
	if opts.Severity == "" {
		opts.Severity = drawSeverity(i.rng, weights)
	}
	return i.Inject(faultType, target, opts)
}

// CascadeInjection reports the outcome of a synthetic fault tree injection.
// Partial failure is tolerated; Faults holds what actually landed.
type CascadeInjection struct {
	Requested int
	Faults    []models.Fault
	Errors    []string
}

// CascadeOptions shapes the synthetic fault tree.
type CascadeOptions struct {
	Depth    int
	Spread   int
	Severity models.Severity
	Duration time.Duration
}

// InjectCascade generates a tree of faults rooted at the initial target,
// mutating the target identifier at each level, and injects them all
// independently.
func (i *Injector) InjectCascade(faultType models.FaultType, initialTarget string, opts CascadeOptions) CascadeInjection {
	if opts.Depth <= 0 {
		opts.Depth = 2
	}
	if opts.Spread <= 0 {
		opts.Spread = 2
	}

	targets := []string{initialTarget}
	for level := 1; level <= opts.Depth; level++ {
		for child := 0; child < opts.Spread; child++ {
			targets = append(targets, fmt.Sprintf("%s-dep%d-%d", initialTarget, level, child))
		}
	}

	result := CascadeInjection{Requested: len(targets)}
	for _, target := range targets {
		fault, err := i.Inject(faultType, target, Options{Severity: opts.Severity, Duration: opts.Duration})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", target, err))
			continue
		}
		result.Faults = append(result.Faults, fault)
	}
	return result
}

// randomTickLoop independently attempts a random injection on a jittered
// interval, subject to a Bernoulli trial at the configured fault probability.
// Errors are logged and never stop future ticks.
func (i *Injector) randomTickLoop() {
	for {
		i.mu.Lock()
		min, max := i.cfg.TickMin, i.cfg.TickMax
		probability := i.cfg.FaultProbability
		i.mu.Unlock()

		jitter := min + time.Duration(i.rng.Float64()*float64(max-min))
		select {
		case <-i.stop:
			return
		case <-time.After(jitter):
		}

		if i.rng.Float64() >= probability {
			continue
		}
		if _, err := i.InjectRandom(Options{Duration: 30 * time.Second}); err != nil {
			i.logger.Debug("random injection skipped", slog.Any("error", err))
		}
	}
}

func (i *Injector) candidateTypes() []models.FaultType {
	if i.registry != nil {
		return i.registry.EnabledTypes()
	}
	types := make([]models.FaultType, 0, len(executorTable))
	for ft := range executorTable {
		types = append(types, ft)
	}
	return types
}

// drawSeverity samples the weighted severity distribution.
func drawSeverity(rng Rand, weights map[models.Severity]float64) models.Severity {
	total := 0.0
	for _, s := range models.Severities {
		total += weights[s]
	}
	if total <= 0 {
		return models.SeverityMedium
	}
	draw := rng.Float64() * total
	for _, s := range models.Severities {
		draw -= weights[s]
		if draw < 0 {
			return s
		}
	}
	return models.SeverityCritical
}
