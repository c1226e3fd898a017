package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// MetricSink receives cascade and recovery events. chaosmetrics.Store satisfies it.
type MetricSink interface {
	RecordCascade(models.CascadeModel)
	RecordRecovery(component string, duration time.Duration, ok bool)
}

// FaultMaker materialises real faults when a simulation requests them.
// *injector.Injector satisfies it.
type FaultMaker interface {
	Inject(faultType models.FaultType, target string, opts injector.Options) (models.Fault, error)
}

// Config controls propagation defaults and breaker modelling.
type Config struct {
	MaxDepth           int
	Probability        float64
	RecoveryTime       time.Duration
	HistoryLimit       int
	BreakerAttenuation float64
	BreakerDepthCut    int
}

// DefaultConfig returns the simulation defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:           5,
		Probability:        0.7,
		RecoveryTime:       30 * time.Second,
		HistoryLimit:       100,
		BreakerAttenuation: 0.3,
		BreakerDepthCut:    1,
	}
}

// SimulateOptions tunes one cascade run. Zero values fall back to Config.
type SimulateOptions struct {
	MaxDepth     int
	Probability  float64
	AutoRecover  bool
	RecoveryTime time.Duration
	InjectFaults bool
	Rules        []models.PropagationRule
}

// Simulator owns all cascade state: models by id, bounded history order, and
// pending recovery timers. The dependency graph is read-only during a run.
type Simulator struct {
	mu       sync.Mutex
	logger   *slog.Logger
	cfg      Config
	provider graph.Provider
	faults   FaultMaker
	sink     MetricSink
	rng      *rand.Rand
	rules    []models.PropagationRule

	cascades map[string]*models.CascadeModel
	order    []string
	timers   map[string]*time.Timer

	closeOnce sync.Once
}

// New constructs a Simulator. faults and sink may be nil; rng nil means
// time-seeded.
func New(logger *slog.Logger, cfg Config, provider graph.Provider, faults FaultMaker, sink MetricSink, rng *rand.Rand) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.Probability <= 0 {
		cfg.Probability = def.Probability
	}
	if cfg.RecoveryTime <= 0 {
		cfg.RecoveryTime = def.RecoveryTime
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.BreakerAttenuation <= 0 {
		cfg.BreakerAttenuation = def.BreakerAttenuation
	}
	if provider == nil {
		provider = graph.NewStatic(graph.Builtin())
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{
		logger:   logger,
		cfg:      cfg,
		provider: provider,
		faults:   faults,
		sink:     sink,
		rng:      rng,
		rules:    DefaultRules(),
		cascades: make(map[string]*models.CascadeModel),
		timers:   make(map[string]*time.Timer),
	}
}

// SimulateCascade propagates an initial failure through the dependency graph
// breadth-first and returns the completed cascade model.
func (s *Simulator) SimulateCascade(ctx context.Context, initial models.InitialFailure, opts SimulateOptions) (models.CascadeModel, error) {
	if initial.Component == "" {
		return models.CascadeModel{}, fmt.Errorf("initial failure component: %w", utils.ErrInvalidTarget)
	}
	g, err := s.provider.Snapshot(ctx)
	if err != nil {
		return models.CascadeModel{}, fmt.Errorf("dependency graph: %w", err)
	}

	s.mu.Lock()
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = s.cfg.MaxDepth
	}
	probability := opts.Probability
	if probability <= 0 {
		probability = s.cfg.Probability
	}
	rules := opts.Rules
	if len(rules) == 0 {
		rules = append([]models.PropagationRule(nil), s.rules...)
	}

	now := time.Now().UTC()
	cascade := &models.CascadeModel{
		ID:             uuid.NewString(),
		InitialFailure: initial,
		Rules:          rules,
		StartedAt:      now,
	}

	root := models.FailureNode{
		ID:               uuid.NewString(),
		Component:        initial.Component,
		FailureType:      initial.Type,
		Depth:            0,
		Probability:      1,
		ImpactScore:      g.Criticality(initial.Component),
		RecoveryPriority: int(g.Criticality(initial.Component)),
		FailedAt:         now,
	}
	cascade.FailureSequence = append(cascade.FailureSequence, root)
	cascade.Timeline = append(cascade.Timeline, models.CascadeEvent{
		Time: now, Component: root.Component, Depth: 0, Event: "initial failure",
	})

	// Iterative worklist keeps propagation strictly breadth-first: a node's
	// depth is always parent.depth+1 and never exceeds maxDepth.
	visited := map[string]struct{}{initial.Component: {}}
	queue := []int{0}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		parent := cascade.FailureSequence[idx]
		if parent.Depth >= maxDepth {
			continue
		}
		spread := func(candidate string, rule models.PropagationRule, event string) {
			p := probability
			if rule.Probability > 0 {
				p *= rule.Probability
			}
			if s.rng.Float64() >= p {
				return
			}
			visited[candidate] = struct{}{}

			multiplier := rule.SeverityMultiplier
			if multiplier <= 0 {
				multiplier = 1
			}
			child := models.FailureNode{
				ID:               uuid.NewString(),
				Component:        candidate,
				FailureType:      parent.FailureType,
				ParentID:         parent.ID,
				Depth:            parent.Depth + 1,
				Probability:      parent.Probability * p,
				ImpactScore:      g.Criticality(candidate) * multiplier,
				RecoveryPriority: int(g.Criticality(candidate)),
				FailedAt:         parent.FailedAt.Add(rule.Delay),
			}
			cascade.FailureSequence = append(cascade.FailureSequence, child)
			cascade.Timeline = append(cascade.Timeline, models.CascadeEvent{
				Time:      child.FailedAt,
				Component: candidate,
				Depth:     child.Depth,
				Event:     event,
			})
			queue = append(queue, len(cascade.FailureSequence)-1)
		}
		for _, candidate := range g.Dependents(parent.Component) {
			if _, seen := visited[candidate]; seen {
				continue
			}
			rule, ok := matchRule(rules, parent.FailureType, candidate)
			if !ok {
				continue
			}
			spread(candidate, rule, fmt.Sprintf("failure propagated from %s", parent.Component))
		}
		// Bidirectional rules model load-driven failures (retry storms,
		// thundering herds) that travel against the dependency direction.
		for _, candidate := range g.Dependencies(parent.Component) {
			if _, seen := visited[candidate]; seen {
				continue
			}
			rule, ok := matchRule(rules, parent.FailureType, candidate)
			if !ok || !rule.Bidirectional {
				continue
			}
			spread(candidate, rule, fmt.Sprintf("failure propagated upstream from %s", parent.Component))
		}
	}

	cascade.BlastRadius = len(cascade.FailureSequence)
	cascade.RecoveryOrder = recoveryOrder(cascade.FailureSequence)
	s.cascades[cascade.ID] = cascade
	s.order = append(s.order, cascade.ID)
	if len(s.order) > s.cfg.HistoryLimit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cascades, oldest)
		if timer, ok := s.timers[oldest]; ok {
			timer.Stop()
			delete(s.timers, oldest)
		}
	}

	if opts.AutoRecover {
		delay := opts.RecoveryTime
		if delay <= 0 {
			delay = s.cfg.RecoveryTime
		}
		id := cascade.ID
		s.timers[id] = time.AfterFunc(delay, func() {
			if _, err := s.SimulateRecovery(id); err != nil {
				s.logger.Warn("deferred recovery failed", slog.String("cascade", id), slog.Any("error", err))
			}
		})
	}
	snapshot := *cascade
	s.mu.Unlock()

	if opts.InjectFaults && s.faults != nil {
		s.materialize(snapshot)
	}
	if s.sink != nil {
		s.sink.RecordCascade(snapshot)
	}
	s.logger.Info("cascade simulated",
		slog.String("id", snapshot.ID),
		slog.String("initial", initial.Component),
		slog.Int("blast_radius", snapshot.BlastRadius),
	)
	return snapshot, nil
}

// SimulateRecovery computes per-component recovery for a finished cascade.
// Safe to call more than once; later calls recompute and restamp EndedAt.
func (s *Simulator) SimulateRecovery(cascadeID string) (models.RecoveryResult, error) {
	s.mu.Lock()
	cascade, ok := s.cascades[cascadeID]
	if !ok {
		s.mu.Unlock()
		return models.RecoveryResult{}, fmt.Errorf("cascade %s: %w", cascadeID, utils.ErrCascadeNotFound)
	}
	if timer, armed := s.timers[cascadeID]; armed {
		timer.Stop()
		delete(s.timers, cascadeID)
	}

	result := models.RecoveryResult{CascadeID: cascadeID}
	strategies := make(map[string]struct{})
	for _, component := range cascade.RecoveryOrder {
		strategy, duration := recoveryStrategy(component)
		strategies[strategy] = struct{}{}
		result.Steps = append(result.Steps, models.RecoveryStep{
			Component: component,
			Strategy:  strategy,
			Duration:  duration,
		})
		result.TotalDuration += duration
	}
	// Parallel recovery is possible when components outnumber the distinct
	// recovery dependencies they contend on.
	result.Parallel = len(result.Steps) > len(strategies)
	result.CompletedAt = time.Now().UTC()

	cascade.Recovery = &result
	ended := result.CompletedAt
	cascade.EndedAt = &ended
	s.mu.Unlock()

	if s.sink != nil {
		for _, step := range result.Steps {
			s.sink.RecordRecovery(step.Component, step.Duration, true)
		}
	}
	return result, nil
}

// GetCascade returns a copy of the cascade with the given id.
func (s *Simulator) GetCascade(id string) (models.CascadeModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cascade, ok := s.cascades[id]
	if !ok {
		return models.CascadeModel{}, fmt.Errorf("cascade %s: %w", id, utils.ErrCascadeNotFound)
	}
	return *cascade, nil
}

// Graph returns the current dependency-graph snapshot.
func (s *Simulator) Graph(ctx context.Context) (*graph.Graph, error) {
	return s.provider.Snapshot(ctx)
}

// History returns copies of retained cascades, oldest first.
func (s *Simulator) History() []models.CascadeModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]models.CascadeModel, 0, len(s.order))
	for _, id := range s.order {
		if cascade, ok := s.cascades[id]; ok {
			history = append(history, *cascade)
		}
	}
	return history
}

// Close cancels pending deferred-recovery timers.
func (s *Simulator) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, timer := range s.timers {
			timer.Stop()
			delete(s.timers, id)
		}
	})
}

// materialize injects a real fault per affected component; individual
// failures are tolerated.
func (s *Simulator) materialize(cascade models.CascadeModel) {
	faultType := cascade.InitialFailure.Type
	if _, known := knownFaultType(faultType); !known {
		faultType = models.FaultProcessCrash
	}
	for _, component := range cascade.AffectedComponents() {
		if _, err := s.faults.Inject(faultType, component, injector.Options{
			Severity: models.SeverityMedium,
			Duration: 30 * time.Second,
		}); err != nil {
			s.logger.Debug("cascade fault injection skipped",
				slog.String("component", component),
				slog.Any("error", err),
			)
		}
	}
}

func knownFaultType(ft models.FaultType) (models.FaultType, bool) {
	for _, known := range []models.FaultType{
		models.FaultNetworkLatency, models.FaultNetworkPartition, models.FaultProcessCrash,
		models.FaultMemoryPressure, models.FaultCPUThrottle, models.FaultDiskFailure,
		models.FaultByzantine, models.FaultClockSkew, models.FaultResourceExhaustion,
		models.FaultDataCorruption, models.FaultThunderingHerd,
	} {
		if ft == known {
			return ft, true
		}
	}
	return ft, false
}

// recoveryOrder sorts deepest-first, then by recovery priority, so leaf
// failures and critical components come back before their ancestors.
func recoveryOrder(nodes []models.FailureNode) []string {
	sorted := append([]models.FailureNode(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Depth != sorted[j].Depth {
			return sorted[i].Depth > sorted[j].Depth
		}
		return sorted[i].RecoveryPriority > sorted[j].RecoveryPriority
	})
	order := make([]string, 0, len(sorted))
	seen := make(map[string]struct{}, len(sorted))
	for _, node := range sorted {
		if _, ok := seen[node.Component]; ok {
			continue
		}
		seen[node.Component] = struct{}{}
		order = append(order, node.Component)
	}
	return order
}

// recoveryStrategy maps a component class to its recovery approach.
func recoveryStrategy(component string) (string, time.Duration) {
	switch graph.Class(component) {
	case "database":
		return "failover", 8 * time.Second
	case "cache":
		return "restart", 2 * time.Second
	case "queue":
		return "retry", 3 * time.Second
	case "gateway":
		return "degrade", 1500 * time.Millisecond
	default:
		return "circuit_break", 2500 * time.Millisecond
	}
}

// matchRule returns the first rule applying to the failure type and candidate.
func matchRule(rules []models.PropagationRule, failureType models.FaultType, candidate string) (models.PropagationRule, bool) {
	class := graph.Class(candidate)
	for _, rule := range rules {
		sourceOK := rule.SourceType == failureType || rule.SourceType == models.FaultTypeAll
		targetOK := rule.TargetType == "" || rule.TargetType == "all" || rule.TargetType == class
		if sourceOK && targetOK {
			return rule, true
		}
	}
	return models.PropagationRule{}, false
}
