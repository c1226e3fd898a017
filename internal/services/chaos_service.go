package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/analyzer"
	"github.com/miradorstack/mirador-chaos/internal/chaosmetrics"
	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/metrics"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/orchestrator"
	"github.com/miradorstack/mirador-chaos/internal/registry"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// ChaosService is the operational facade over the chaos components. Every
// mutating call is observed in Prometheus and the experiment latency tracker.
type ChaosService struct {
	logger       *slog.Logger
	registry     *registry.Registry
	injector     *injector.Injector
	simulator    *simulator.Simulator
	analyzer     *analyzer.Analyzer
	orchestrator *orchestrator.Orchestrator
	store        *chaosmetrics.Store
	latencies    *utils.LatencyTracker
}

// NewChaosService constructs the facade.
func NewChaosService(
	logger *slog.Logger,
	reg *registry.Registry,
	inj *injector.Injector,
	sim *simulator.Simulator,
	anl *analyzer.Analyzer,
	orc *orchestrator.Orchestrator,
	store *chaosmetrics.Store,
) *ChaosService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChaosService{
		logger:       logger,
		registry:     reg,
		injector:     inj,
		simulator:    sim,
		analyzer:     anl,
		orchestrator: orc,
		store:        store,
		latencies:    utils.NewLatencyTracker(1024),
	}
}

// Catalog returns the fault-type catalog summary.
func (s *ChaosService) Catalog() registry.Catalog {
	return s.registry.Catalog()
}

// InjectFault injects one fault and records the outcome.
func (s *ChaosService) InjectFault(faultType models.FaultType, target string, opts injector.Options) (models.Fault, error) {
	fault, err := s.injector.Inject(faultType, target, opts)
	if err != nil {
		metrics.ObserveInjection(string(faultType), metrics.OutcomeError)
		return models.Fault{}, err
	}
	metrics.ObserveInjection(string(faultType), metrics.OutcomeSuccess)
	metrics.SetActiveFaults(s.injector.ActiveCount())
	return fault, nil
}

// InjectRandom injects a random enabled fault against a random target.
func (s *ChaosService) InjectRandom(opts injector.Options) (models.Fault, error) {
	fault, err := s.injector.InjectRandom(opts)
	if err != nil {
		metrics.ObserveInjection("random", metrics.OutcomeError)
		return models.Fault{}, err
	}
	metrics.ObserveInjection(string(fault.Type), metrics.OutcomeSuccess)
	metrics.SetActiveFaults(s.injector.ActiveCount())
	return fault, nil
}

// InjectCascade fans a fault out across a target's synthetic dependents.
func (s *ChaosService) InjectCascade(faultType models.FaultType, target string, opts injector.CascadeOptions) injector.CascadeInjection {
	result := s.injector.InjectCascade(faultType, target, opts)
	metrics.SetActiveFaults(s.injector.ActiveCount())
	return result
}

// ClearFault deactivates one fault by id.
func (s *ChaosService) ClearFault(faultID string) error {
	err := s.injector.Clear(faultID)
	metrics.SetActiveFaults(s.injector.ActiveCount())
	return err
}

// ClearAllFaults deactivates every active fault and returns the count.
func (s *ChaosService) ClearAllFaults() int {
	cleared := s.injector.ClearAll()
	metrics.SetActiveFaults(0)
	return cleared
}

// ActiveFaults lists currently active faults, oldest first.
func (s *ChaosService) ActiveFaults() []models.Fault {
	return s.injector.ListActive()
}

// FaultHistory returns up to limit most recent fault records.
func (s *ChaosService) FaultHistory(limit int) []models.Fault {
	return s.injector.History(limit)
}

// ApplyPolicy registers a standing injection policy.
func (s *ChaosService) ApplyPolicy(p injector.Policy) (string, error) {
	return s.injector.ApplyPolicy(p)
}

// RemovePolicy removes a standing injection policy.
func (s *ChaosService) RemovePolicy(id string) {
	s.injector.RemovePolicy(id)
}

// SimulateCascade runs a cascade simulation and records its blast radius.
func (s *ChaosService) SimulateCascade(ctx context.Context, initial models.InitialFailure, opts simulator.SimulateOptions) (models.CascadeModel, error) {
	cascade, err := s.simulator.SimulateCascade(ctx, initial, opts)
	if err != nil {
		return models.CascadeModel{}, err
	}
	metrics.ObserveCascade(cascade.BlastRadius)
	return cascade, nil
}

// SimulateRecovery replays recovery for a stored cascade.
func (s *ChaosService) SimulateRecovery(cascadeID string) (models.RecoveryResult, error) {
	return s.simulator.SimulateRecovery(cascadeID)
}

// AnalyzeBlastRadius computes the worst-case reach of a component failure.
func (s *ChaosService) AnalyzeBlastRadius(ctx context.Context, component string, faultType models.FaultType) (simulator.BlastRadius, error) {
	return s.simulator.AnalyzeBlastRadius(ctx, component, faultType)
}

// PredictCascadePath predicts the affected set for an initial failure.
func (s *ChaosService) PredictCascadePath(ctx context.Context, component string) (simulator.PredictedPath, error) {
	return s.simulator.PredictCascadePath(ctx, component)
}

// TestCircuitBreakers replays a cascade with breaker modelling.
func (s *ChaosService) TestCircuitBreakers(cascadeID string) (simulator.BreakerComparison, error) {
	return s.simulator.TestCircuitBreakers(cascadeID)
}

// RunExperiment executes an experiment end to end, observing status and
// latency. The p95 is logged every 20 experiments.
func (s *ChaosService) RunExperiment(ctx context.Context, exp models.Experiment) (models.Experiment, error) {
	start := time.Now()
	done, err := s.orchestrator.RunExperiment(ctx, exp)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveExperiment(string(models.StatusFailed), duration)
		s.logger.Error("experiment rejected", slog.String("experiment", exp.Name), slog.Any("error", err))
		return models.Experiment{}, err
	}
	s.latencies.Observe(duration)
	metrics.ObserveExperiment(string(done.Status), duration)
	metrics.SetActiveFaults(s.injector.ActiveCount())
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("experiment latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count),
		)
	}
	return done, nil
}

// StopExperiment cancels a running experiment.
func (s *ChaosService) StopExperiment(id string) error {
	return s.orchestrator.StopExperiment(id)
}

// GetExperiment returns a stored experiment.
func (s *ChaosService) GetExperiment(id string) (models.Experiment, error) {
	return s.orchestrator.GetExperiment(id)
}

// RunCampaign executes a campaign of experiments sequentially.
func (s *ChaosService) RunCampaign(ctx context.Context, campaign models.Campaign) (models.Campaign, error) {
	return s.orchestrator.RunCampaign(ctx, campaign)
}

// ScheduleCampaign arms a campaign on its schedule.
func (s *ChaosService) ScheduleCampaign(campaign models.Campaign) (string, error) {
	return s.orchestrator.ScheduleCampaign(campaign)
}

// RunResilienceTest executes one named resilience test.
func (s *ChaosService) RunResilienceTest(ctx context.Context, name string) (analyzer.TestResult, error) {
	return s.analyzer.RunTest(ctx, name)
}

// RunResilienceSuite executes a named test suite.
func (s *ChaosService) RunResilienceSuite(ctx context.Context, name string) (analyzer.SuiteResult, error) {
	return s.analyzer.RunSuite(ctx, name)
}

// AnalyzeResilience runs a full analysis at the given intensity.
func (s *ChaosService) AnalyzeResilience(ctx context.Context, opts analyzer.AnalyzeOptions) (analyzer.AnalysisResult, error) {
	return s.analyzer.AnalyzeResilience(ctx, opts)
}

// ResilienceScore returns the current composite score.
func (s *ChaosService) ResilienceScore() float64 {
	return s.analyzer.CalculateResilienceScore()
}

// GenerateReport assembles the resilience report for a time range.
func (s *ChaosService) GenerateReport(ctx context.Context, tr models.TimeRange) (analyzer.Report, error) {
	return s.analyzer.GenerateReport(ctx, tr)
}

// GetMetrics returns raw points for one metric in a range.
func (s *ChaosService) GetMetrics(name string, tr models.TimeRange) []models.MetricPoint {
	return s.store.GetMetrics(name, tr)
}

// GetStatistics returns summary statistics for one metric in a range.
func (s *ChaosService) GetStatistics(name string, tr models.TimeRange) chaosmetrics.Statistics {
	return s.store.GetStatistics(name, tr)
}

// Dashboard returns the aggregate dashboard view.
func (s *ChaosService) Dashboard() chaosmetrics.Dashboard {
	return s.store.GetDashboardData()
}

// ExportMetrics serialises stored metrics in the given format.
func (s *ChaosService) ExportMetrics(format chaosmetrics.ExportFormat) ([]byte, error) {
	return s.store.Export(format)
}

// ExperimentLatencyP95 returns the current p95 experiment wall time.
func (s *ChaosService) ExperimentLatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
