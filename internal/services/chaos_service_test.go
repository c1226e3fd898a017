package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/analyzer"
	"github.com/miradorstack/mirador-chaos/internal/chaosmetrics"
	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/orchestrator"
	"github.com/miradorstack/mirador-chaos/internal/registry"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

func newTestService(t *testing.T) *ChaosService {
	t.Helper()
	store := chaosmetrics.NewStore(nil, chaosmetrics.Config{})
	reg := registry.New(nil)
	inj := injector.New(nil, injector.Config{Enabled: true, MaxConcurrentFaults: 20}, reg, injector.NewSimulatedBackend(), store, injector.NewRand(1))
	t.Cleanup(inj.Close)
	sim := simulator.New(nil, simulator.Config{}, graph.NewStatic(graph.Builtin()), nil, store, rand.New(rand.NewSource(1)))
	t.Cleanup(sim.Close)
	anl := analyzer.New(nil, analyzer.Config{SettleDelay: time.Millisecond}, inj, sim, store, rand.New(rand.NewSource(1)))
	t.Cleanup(anl.Close)
	orc := orchestrator.New(nil, orchestrator.Config{}, inj, sim, store)
	t.Cleanup(orc.Close)
	return NewChaosService(nil, reg, inj, sim, anl, orc, store)
}

func TestServiceFaultLifecycle(t *testing.T) {
	svc := newTestService(t)

	if svc.Catalog().Total == 0 {
		t.Fatal("expected a populated fault catalog")
	}

	fault, err := svc.InjectFault(models.FaultNetworkLatency, "svc-a", injector.Options{})
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if len(svc.ActiveFaults()) != 1 {
		t.Fatalf("expected 1 active fault, got %d", len(svc.ActiveFaults()))
	}
	if err := svc.ClearFault(fault.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := svc.ClearFault(fault.ID); !errors.Is(err, utils.ErrFaultNotFound) {
		t.Fatalf("expected ErrFaultNotFound, got %v", err)
	}
	if history := svc.FaultHistory(10); len(history) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history))
	}
}

func TestServiceCascadeAndRecovery(t *testing.T) {
	svc := newTestService(t)

	cascade, err := svc.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "db",
		Type:      models.FaultProcessCrash,
	}, simulator.SimulateOptions{Probability: 1})
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if cascade.BlastRadius < 1 {
		t.Fatalf("unexpected blast radius %d", cascade.BlastRadius)
	}

	recovery, err := svc.SimulateRecovery(cascade.ID)
	if err != nil {
		t.Fatalf("recovery: %v", err)
	}
	if len(recovery.Steps) != cascade.BlastRadius {
		t.Fatalf("expected a recovery step per component, got %d/%d", len(recovery.Steps), cascade.BlastRadius)
	}

	comparison, err := svc.TestCircuitBreakers(cascade.ID)
	if err != nil {
		t.Fatalf("breakers: %v", err)
	}
	if comparison.WithBreakers > comparison.WithoutBreakers {
		t.Fatalf("breakers widened the cascade: %+v", comparison)
	}
}

func TestServiceRunExperimentTracksLatency(t *testing.T) {
	svc := newTestService(t)

	done, err := svc.RunExperiment(context.Background(), models.Experiment{
		Name: "latency-smoke",
		Steps: []models.ExperimentStep{
			{
				ID:     "inject",
				Action: models.ActionInjectFault,
				Target: "svc-a",
				Params: models.StepParams{FaultType: models.FaultNetworkLatency},
			},
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if done.Status != models.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", done.Status)
	}
	if svc.ExperimentLatencyP95() <= 0 {
		t.Fatal("expected a tracked experiment latency")
	}
	if cleared := svc.ClearAllFaults(); cleared != 1 {
		t.Fatalf("expected 1 fault cleared, got %d", cleared)
	}
}

func TestServiceResilienceSurface(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.RunResilienceTest(context.Background(), "single_failure")
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if !result.Success {
		t.Fatalf("built-in test failed: %+v", result)
	}

	score := svc.ResilienceScore()
	if score < 0 || score > 1 {
		t.Fatalf("score out of range: %.3f", score)
	}

	report, err := svc.GenerateReport(context.Background(), models.RangeLastDay)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.TestsRun != 1 {
		t.Fatalf("expected 1 test counted, got %d", report.TestsRun)
	}

	dash := svc.Dashboard()
	if dash.FaultsByType == nil {
		t.Fatal("expected dashboard rollups")
	}

	payload, err := svc.ExportMetrics(chaosmetrics.FormatJSON)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("expected export payload")
	}
}
