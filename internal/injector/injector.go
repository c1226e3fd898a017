package injector

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/registry"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// MetricSink receives injection lifecycle events. chaosmetrics.Store satisfies it.
type MetricSink interface {
	RecordFault(models.Fault)
	RecordFaultCleared(models.Fault)
}

// Config controls injection behaviour and the background random tick.
type Config struct {
	Enabled             bool
	MaxConcurrentFaults int
	FaultProbability    float64
	HistoryLimit        int
	Targets             []string
	SeverityWeights     map[models.Severity]float64
	TickMin             time.Duration
	TickMax             time.Duration
	PolicyInterval      time.Duration
}

// DefaultConfig returns the injection defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		MaxConcurrentFaults: 10,
		FaultProbability:    0.1,
		HistoryLimit:        500,
		Targets:             []string{"svc-a", "svc-b", "svc-c"},
		SeverityWeights: map[models.Severity]float64{
			models.SeverityLow:      0.5,
			models.SeverityMedium:   0.3,
			models.SeverityHigh:     0.15,
			models.SeverityCritical: 0.05,
		},
		TickMin:        30 * time.Second,
		TickMax:        90 * time.Second,
		PolicyInterval: 30 * time.Second,
	}
}

// Options tunes a single injection.
type Options struct {
	Severity    models.Severity
	Duration    time.Duration
	Probability float64
	Metadata    map[string]string
}

// Injector creates, tracks, and expires active faults. All mutable state is
// owned by the injector and guarded by its mutex; callers only ever see copies.
type Injector struct {
	mu       sync.Mutex
	logger   *slog.Logger
	cfg      Config
	registry *registry.Registry
	backend  Backend
	sink     MetricSink
	rng      Rand
	loadFn   func() float64

	active  map[string]*models.Fault
	history []models.Fault
	timers  map[string]*time.Timer

	// Side tables simulating per-fault effects, cleaned up on clear.
	latencyTable    map[string]float64
	corruptionTable map[string]float64
	partitions      map[string][]string

	policies map[string]Policy

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs an Injector. A nil backend falls back to the simulated
// executor; a nil sink discards metric events.
func New(logger *slog.Logger, cfg Config, reg *registry.Registry, backend Backend, sink MetricSink, rng Rand) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxConcurrentFaults <= 0 {
		cfg.MaxConcurrentFaults = def.MaxConcurrentFaults
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = def.Targets
	}
	if len(cfg.SeverityWeights) == 0 {
		cfg.SeverityWeights = def.SeverityWeights
	}
	if cfg.TickMin <= 0 {
		cfg.TickMin = def.TickMin
	}
	if cfg.TickMax <= cfg.TickMin {
		cfg.TickMax = cfg.TickMin + time.Minute
	}
	if cfg.PolicyInterval <= 0 {
		cfg.PolicyInterval = def.PolicyInterval
	}
	if backend == nil {
		backend = NewSimulatedBackend()
	}
	if rng == nil {
		rng = NewRand(time.Now().UnixNano())
	}
	return &Injector{
		logger:          logger,
		cfg:             cfg,
		registry:        reg,
		backend:         backend,
		sink:            sink,
		rng:             rng,
		loadFn:          func() float64 { return 0 },
		active:          make(map[string]*models.Fault),
		timers:          make(map[string]*time.Timer),
		latencyTable:    make(map[string]float64),
		corruptionTable: make(map[string]float64),
		partitions:      make(map[string][]string),
		policies:        make(map[string]Policy),
		stop:            make(chan struct{}),
	}
}

// Enabled reports whether injection is currently allowed.
func (i *Injector) Enabled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cfg.Enabled
}

// MaxConcurrentFaults returns the configured active-fault ceiling.
func (i *Injector) MaxConcurrentFaults() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cfg.MaxConcurrentFaults
}

// SetLoadFunc installs the system-load probe used by policy conditions.
func (i *Injector) SetLoadFunc(fn func() float64) {
	if fn == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.loadFn = fn
}

// Inject validates, executes, and tracks a new fault. The returned Fault is a
// copy; the injector retains ownership of the live record.
func (i *Injector) Inject(faultType models.FaultType, target string, opts Options) (models.Fault, error) {
	if strings.TrimSpace(target) == "" {
		return models.Fault{}, fmt.Errorf("target %q: %w", target, utils.ErrInvalidTarget)
	}
	if !i.Enabled() {
		return models.Fault{}, utils.ErrInjectionDisabled
	}
	severity := severityOrDefault(opts.Severity)
	params := severityParams(faultType, severity)
	if i.registry != nil {
		def, err := i.registry.GetByType(faultType)
		if err != nil {
			return models.Fault{}, err
		}
		if !i.registry.Enabled(faultType) {
			return models.Fault{}, fmt.Errorf("fault type %s is disabled: %w", faultType, utils.ErrInjectionDisabled)
		}
		if preset, ok := def.Presets[severity]; ok {
			params = preset
		}
	}
	if params == nil {
		return models.Fault{}, fmt.Errorf("fault type %s: %w", faultType, utils.ErrUnknownFaultType)
	}

	fault := &models.Fault{
		ID:          uuid.NewString(),
		Type:        faultType,
		Target:      target,
		Severity:    severity,
		Duration:    opts.Duration,
		Probability: probabilityOrDefault(opts.Probability),
		Metadata:    opts.Metadata,
		ActivatedAt: time.Now().UTC(),
	}

	// Reserve the slot before executing so the ceiling can never be exceeded
	// by concurrent injections.
	i.mu.Lock()
	if len(i.active) >= i.cfg.MaxConcurrentFaults {
		i.mu.Unlock()
		return models.Fault{}, fmt.Errorf("%d faults active: %w", i.cfg.MaxConcurrentFaults, utils.ErrMaxConcurrentFaults)
	}
	i.active[fault.ID] = fault
	i.mu.Unlock()

	impact, err := i.backend.Execute(*fault, params)
	if err != nil {
		i.discard(fault.ID)
		return models.Fault{}, fmt.Errorf("execute %s on %s: %w", faultType, target, err)
	}
	if impact == nil {
		// A backend returning neither impact nor error violated the contract;
		// clear the fault rather than leaving it half-active.
		i.discard(fault.ID)
		return models.Fault{}, fmt.Errorf("backend returned no impact for %s: %w", faultType, utils.ErrExecutorContract)
	}

	i.mu.Lock()
	fault.ImpactMetrics = impact
	i.recordSideEffects(fault, params)

	completed := impact["completed"] >= 1
	if fault.Duration > 0 {
		id := fault.ID
		i.timers[id] = time.AfterFunc(fault.Duration, func() { i.expire(id) })
	}
	var snapshot models.Fault
	if fault.Duration == 0 && completed {
		// One-shot faults (a crash already happened) deactivate immediately.
		i.finalizeLocked(fault)
		snapshot = *fault
	} else {
		snapshot = *fault
	}
	i.mu.Unlock()

	if i.sink != nil {
		i.sink.RecordFault(snapshot)
	}
	i.logger.Info("fault injected",
		slog.String("id", snapshot.ID),
		slog.String("type", string(snapshot.Type)),
		slog.String("target", snapshot.Target),
		slog.String("severity", string(snapshot.Severity)),
	)
	return snapshot, nil
}

// Clear deactivates an active fault, releasing its simulated resources.
// A second call for the same id returns ErrFaultNotFound.
func (i *Injector) Clear(faultID string) error {
	i.mu.Lock()
	fault, ok := i.active[faultID]
	if !ok {
		i.mu.Unlock()
		return fmt.Errorf("fault %s: %w", faultID, utils.ErrFaultNotFound)
	}
	if timer, ok := i.timers[faultID]; ok {
		timer.Stop()
		delete(i.timers, faultID)
	}
	i.finalizeLocked(fault)
	snapshot := *fault
	i.mu.Unlock()

	if err := i.backend.Release(snapshot); err != nil {
		i.logger.Warn("backend release failed", slog.String("id", faultID), slog.Any("error", err))
	}
	if i.sink != nil {
		i.sink.RecordFaultCleared(snapshot)
	}
	i.logger.Info("fault cleared", slog.String("id", faultID), slog.String("type", string(snapshot.Type)))
	return nil
}

// ClearAll deactivates every active fault. Safe to call at any time.
func (i *Injector) ClearAll() int {
	i.mu.Lock()
	ids := make([]string, 0, len(i.active))
	for id := range i.active {
		ids = append(ids, id)
	}
	i.mu.Unlock()

	cleared := 0
	for _, id := range ids {
		if err := i.Clear(id); err == nil {
			cleared++
		}
	}
	return cleared
}

// ListActive returns copies of the active faults, oldest first.
func (i *Injector) ListActive() []models.Fault {
	i.mu.Lock()
	defer i.mu.Unlock()
	faults := make([]models.Fault, 0, len(i.active))
	for _, fault := range i.active {
		faults = append(faults, *fault)
	}
	sort.Slice(faults, func(a, b int) bool {
		return faults[a].ActivatedAt.Before(faults[b].ActivatedAt)
	})
	return faults
}

// ActiveCount returns the number of currently active faults.
func (i *Injector) ActiveCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.active)
}

// History returns up to limit most recently cleared faults, newest first.
func (i *Injector) History(limit int) []models.Fault {
	i.mu.Lock()
	defer i.mu.Unlock()
	if limit <= 0 || limit > len(i.history) {
		limit = len(i.history)
	}
	return append([]models.Fault(nil), i.history[:limit]...)
}

// Start arms the random injection tick and the policy evaluation loop.
func (i *Injector) Start() {
	go i.randomTickLoop()
	go i.policyLoop()
}

// Close stops background loops and cancels pending expiry timers. Active
// faults stay recorded; callers that want a clean slate call ClearAll first.
func (i *Injector) Close() {
	i.stopOnce.Do(func() {
		close(i.stop)
		i.mu.Lock()
		for id, timer := range i.timers {
			timer.Stop()
			delete(i.timers, id)
		}
		i.mu.Unlock()
	})
}

// expire is the auto-clear path armed by inject; it tolerates faults that
// were already cleared manually.
func (i *Injector) expire(faultID string) {
	i.mu.Lock()
	fault, ok := i.active[faultID]
	if !ok {
		i.mu.Unlock()
		return
	}
	delete(i.timers, faultID)
	i.finalizeLocked(fault)
	snapshot := *fault
	i.mu.Unlock()

	if err := i.backend.Release(snapshot); err != nil {
		i.logger.Warn("backend release failed on expiry", slog.String("id", faultID), slog.Any("error", err))
	}
	if i.sink != nil {
		i.sink.RecordFaultCleared(snapshot)
	}
	i.logger.Debug("fault expired", slog.String("id", faultID))
}

// discard removes a reserved fault that never became active.
func (i *Injector) discard(faultID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.active, faultID)
}

// finalizeLocked stamps deactivation, drops side tables, and moves the fault
// to history. Caller holds i.mu.
func (i *Injector) finalizeLocked(fault *models.Fault) {
	now := time.Now().UTC()
	fault.DeactivatedAt = &now
	delete(i.latencyTable, fault.ID)
	delete(i.corruptionTable, fault.ID)
	delete(i.partitions, fault.ID)
	delete(i.active, fault.ID)

	i.history = append([]models.Fault{*fault}, i.history...)
	if len(i.history) > i.cfg.HistoryLimit {
		i.history = i.history[:i.cfg.HistoryLimit]
	}
}

// recordSideEffects populates the simulation side tables keyed by fault id.
// Caller holds i.mu.
func (i *Injector) recordSideEffects(fault *models.Fault, params map[string]float64) {
	switch fault.Type {
	case models.FaultNetworkLatency:
		i.latencyTable[fault.ID] = params["latency_ms"]
	case models.FaultDataCorruption:
		i.corruptionTable[fault.ID] = params["corruption_rate"]
	case models.FaultNetworkPartition:
		peers := []string{fault.Target}
		if raw, ok := fault.Metadata["peers"]; ok && raw != "" {
			peers = strings.Split(raw, ",")
		}
		i.partitions[fault.ID] = peers
	}
}

// SimulatedLatency reports the latency table entry for a fault, if any.
func (i *Injector) SimulatedLatency(faultID string) (float64, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, ok := i.latencyTable[faultID]
	return v, ok
}

func severityOrDefault(s models.Severity) models.Severity {
	if s == "" {
		return models.SeverityMedium
	}
	return s
}

func probabilityOrDefault(p float64) float64 {
	if p <= 0 || p > 1 {
		return 1
	}
	return p
}
