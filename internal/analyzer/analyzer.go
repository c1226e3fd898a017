package analyzer

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-chaos/internal/chaosmetrics"
	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
)

// ScoreWeights shape the composite resilience score. They should sum to 1.
type ScoreWeights struct {
	Availability      float64
	MTTR              float64
	FaultTolerance    float64
	CascadeResistance float64
	RecoveryRate      float64
	Consistency       float64
}

// DefaultWeights returns the shipped weighting.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Availability:      0.20,
		MTTR:              0.25,
		FaultTolerance:    0.20,
		CascadeResistance: 0.15,
		RecoveryRate:      0.10,
		Consistency:       0.10,
	}
}

// Config controls analysis cadence and test pacing.
type Config struct {
	AnalysisInterval time.Duration
	SettleDelay      time.Duration
	HistoryLimit     int
	Weights          ScoreWeights
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		AnalysisInterval: time.Minute,
		SettleDelay:      500 * time.Millisecond,
		HistoryLimit:     500,
		Weights:          DefaultWeights(),
	}
}

// Intensity sizes an end-to-end resilience analysis run.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

func (i Intensity) batches() (injections, cascades int) {
	switch i {
	case IntensityMedium:
		return 7, 3
	case IntensityHigh:
		return 15, 5
	default:
		return 3, 1
	}
}

// Analyzer runs resilience tests and derives scores from chaos metrics.
type Analyzer struct {
	mu        sync.Mutex
	logger    *slog.Logger
	cfg       Config
	injector  *injector.Injector
	simulator *simulator.Simulator
	store     *chaosmetrics.Store
	rng       *rand.Rand

	tests   map[string]Test
	suites  map[string][]string
	history []models.ResilienceMetrics
	results []TestResult

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs an Analyzer wired to the injector, simulator, and metric store.
func New(logger *slog.Logger, cfg Config, inj *injector.Injector, sim *simulator.Simulator, store *chaosmetrics.Store, rng *rand.Rand) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = def.AnalysisInterval
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = def.Weights
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	a := &Analyzer{
		logger:    logger,
		cfg:       cfg,
		injector:  inj,
		simulator: sim,
		store:     store,
		rng:       rng,
		tests:     make(map[string]Test),
		suites:    make(map[string][]string),
		stop:      make(chan struct{}),
	}
	a.registerBuiltinTests()
	return a
}

// AnalyzeOptions tunes one end-to-end analysis run.
type AnalyzeOptions struct {
	Intensity Intensity
	Duration  time.Duration
}

// AnalysisResult is the outcome of one AnalyzeResilience run.
type AnalysisResult struct {
	ID                string
	StartedAt         time.Time
	FinishedAt        time.Time
	Intensity         Intensity
	FaultsAttempted   int
	FaultsInjected    int
	CascadesRun       int
	AvgBlastRadius    float64
	AvgRecoveryMillis float64
	FaultTolerance    float64
	CascadeResistance float64
	ResilienceScore   float64
	Metrics           models.ResilienceMetrics
}

// AnalyzeResilience performs an injection batch, a cascade batch, and
// recovery benchmarks, then derives a composite score in [0,1]. The call
// blocks until the run completes.
func (a *Analyzer) AnalyzeResilience(ctx context.Context, opts AnalyzeOptions) (AnalysisResult, error) {
	injections, cascades := opts.Intensity.batches()
	result := AnalysisResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Intensity: opts.Intensity,
	}

	result.FaultsAttempted = injections
	for n := 0; n < injections; n++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := a.injector.InjectRandom(injector.Options{Duration: a.cfg.SettleDelay}); err != nil {
			// Capacity and disabled errors reduce tolerance; they do not
			// abort the run.
			a.logger.Debug("analysis injection rejected", slog.Any("error", err))
			continue
		}
		result.FaultsInjected++
	}

	totalBlast := 0.0
	var totalRecovery time.Duration
	recoveries := 0
	components := a.targetComponents()
	for n := 0; n < cascades; n++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		component := components[a.rng.Intn(len(components))]
		cascade, err := a.simulator.SimulateCascade(ctx, models.InitialFailure{
			Component: component,
			Type:      models.FaultProcessCrash,
		}, simulator.SimulateOptions{})
		if err != nil {
			a.logger.Debug("analysis cascade failed", slog.Any("error", err))
			continue
		}
		result.CascadesRun++
		totalBlast += float64(cascade.BlastRadius)

		recovery, err := a.simulator.SimulateRecovery(cascade.ID)
		if err != nil {
			continue
		}
		totalRecovery += recovery.TotalDuration
		recoveries++
	}

	select {
	case <-ctx.Done():
		return result, ctx.Err()
	case <-time.After(a.cfg.SettleDelay):
	}
	a.injector.ClearAll()

	if result.CascadesRun > 0 {
		result.AvgBlastRadius = totalBlast / float64(result.CascadesRun)
	}
	if recoveries > 0 {
		result.AvgRecoveryMillis = float64(totalRecovery.Milliseconds()) / float64(recoveries)
	}
	if result.FaultsAttempted > 0 {
		result.FaultTolerance = float64(result.FaultsInjected) / float64(result.FaultsAttempted)
	} else {
		result.FaultTolerance = 1
	}
	result.CascadeResistance = cascadeResistance(result.AvgBlastRadius)

	recoveryTerm := 1 - result.AvgRecoveryMillis/10000
	if recoveryTerm < 0 {
		recoveryTerm = 0
	}
	result.ResilienceScore = clamp(0.3*result.FaultTolerance+0.3*result.CascadeResistance+0.4*recoveryTerm, 0, 1)
	result.FinishedAt = time.Now().UTC()
	result.Metrics = a.snapshotMetrics()

	a.mu.Lock()
	a.history = append(a.history, result.Metrics)
	if len(a.history) > a.cfg.HistoryLimit {
		a.history = a.history[len(a.history)-a.cfg.HistoryLimit:]
	}
	a.mu.Unlock()

	a.logger.Info("resilience analysis complete",
		slog.String("intensity", string(opts.Intensity)),
		slog.Float64("score", result.ResilienceScore),
	)
	return result, nil
}

// CalculateResilienceScore computes the weighted score over the latest
// resilience metrics. With no history it snapshots current metrics first.
func (a *Analyzer) CalculateResilienceScore() float64 {
	a.mu.Lock()
	var latest models.ResilienceMetrics
	if len(a.history) > 0 {
		latest = a.history[len(a.history)-1]
	}
	weights := a.cfg.Weights
	a.mu.Unlock()

	if latest.ID == "" {
		latest = a.snapshotMetrics()
	}

	mttrTerm := 1 - latest.MTTR/10000
	if mttrTerm < 0 {
		mttrTerm = 0
	}
	score := weights.Availability*latest.Availability +
		weights.MTTR*mttrTerm +
		weights.FaultTolerance*latest.FaultToleranceScore +
		weights.CascadeResistance*latest.CascadeResistance +
		weights.RecoveryRate*latest.RecoverySuccessRate +
		weights.Consistency*latest.DataConsistencyScore
	return clamp(score, 0, 1)
}

// Store exposes the backing metric store for report generation.
func (a *Analyzer) Store() *chaosmetrics.Store { return a.store }

// MetricsHistory returns a copy of the retained resilience metrics.
func (a *Analyzer) MetricsHistory() []models.ResilienceMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ResilienceMetrics(nil), a.history...)
}

// Start arms the lightweight background analysis keeping history warm
// without the cost of a full injection campaign.
func (a *Analyzer) Start() {
	go func() {
		ticker := time.NewTicker(a.cfg.AnalysisInterval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				metrics := a.snapshotMetrics()
				a.mu.Lock()
				a.history = append(a.history, metrics)
				if len(a.history) > a.cfg.HistoryLimit {
					a.history = a.history[len(a.history)-a.cfg.HistoryLimit:]
				}
				a.mu.Unlock()
			}
		}
	}()
}

// Close stops the background analysis loop.
func (a *Analyzer) Close() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// snapshotMetrics derives a ResilienceMetrics sample from the metric store
// without injecting anything. Empty history yields optimistic defaults so
// report reads never fail.
func (a *Analyzer) snapshotMetrics() models.ResilienceMetrics {
	m := models.ResilienceMetrics{
		ID:                     uuid.NewString(),
		Timestamp:              time.Now().UTC(),
		DataConsistencyScore:   1,
		FailoverEffectiveness:  0.8,
		CircuitBreakerCoverage: 0.5,
	}

	recovery := a.store.GetStatistics("recovery.duration", models.RangeLastDay)
	if recovery.Count > 0 {
		m.MTTR = recovery.Avg
	}

	faults := a.store.GetMetrics("fault.injected", models.RangeLastDay)
	windowMillis := float64(models.RangeLastDay.Window().Milliseconds())
	if len(faults) > 0 {
		m.MTBF = windowMillis / float64(len(faults))
	} else {
		m.MTBF = windowMillis
	}
	if m.MTBF+m.MTTR > 0 {
		m.Availability = m.MTBF / (m.MTBF + m.MTTR)
	} else {
		m.Availability = 1
	}

	if success := a.store.GetStatistics("recovery.success", models.RangeLastDay); success.Count > 0 {
		m.RecoverySuccessRate = success.Avg
		m.FaultToleranceScore = success.Avg
	} else {
		m.RecoverySuccessRate = 1
		m.FaultToleranceScore = 1
	}

	if blast := a.store.GetStatistics("cascade.blast_radius", models.RangeLastDay); blast.Count > 0 {
		m.CascadeResistance = cascadeResistance(blast.Avg)
	} else {
		m.CascadeResistance = 1
	}

	corrupted := 0
	for _, point := range faults {
		if point.Tags["type"] == string(models.FaultDataCorruption) {
			corrupted++
		}
	}
	if len(faults) > 0 {
		m.DataConsistencyScore = clamp(1-float64(corrupted)/float64(len(faults)), 0, 1)
		m.PerformanceDegradation = clamp(float64(a.injector.ActiveCount())/10, 0, 1)
	}
	return m
}

func (a *Analyzer) targetComponents() []string {
	history := a.simulator.History()
	if len(history) > 0 {
		components := make([]string, 0, len(history))
		for _, cascade := range history {
			components = append(components, cascade.InitialFailure.Component)
		}
		return components
	}
	return []string{"db", "api", "web"}
}

func cascadeResistance(avgBlast float64) float64 {
	penalty := avgBlast / 10
	if penalty > 1 {
		penalty = 1
	}
	return 1 - penalty
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
