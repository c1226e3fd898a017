package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/registry"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

func newTestOrchestrator(t *testing.T, cfg Config, injCfg injector.Config) (*Orchestrator, *injector.Injector) {
	t.Helper()
	if injCfg.MaxConcurrentFaults == 0 {
		injCfg.MaxConcurrentFaults = 10
	}
	inj := injector.New(nil, injCfg, registry.New(nil), injector.NewSimulatedBackend(), nil, injector.NewRand(1))
	t.Cleanup(inj.Close)
	sim := simulator.New(nil, simulator.Config{}, graph.NewStatic(graph.Builtin()), nil, nil, rand.New(rand.NewSource(1)))
	t.Cleanup(sim.Close)
	orch := New(nil, cfg, inj, sim, nil)
	t.Cleanup(orch.Close)
	return orch, inj
}

func injectStep(id, target string) models.ExperimentStep {
	return models.ExperimentStep{
		ID:     id,
		Action: models.ActionInjectFault,
		Target: target,
		Params: models.StepParams{FaultType: models.FaultNetworkLatency},
	}
}

func TestRunExperimentSucceeds(t *testing.T) {
	orch, inj := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	done, err := orch.RunExperiment(context.Background(), models.Experiment{
		Name:  "latency-smoke",
		Steps: []models.ExperimentStep{injectStep("inject", "svc-a")},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if done.Status != models.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", done.Status)
	}
	result, ok := done.Results["inject"]
	if !ok || !result.OK || result.FaultID == "" {
		t.Fatalf("unexpected step result: %+v", result)
	}
	if done.EndedAt == nil {
		t.Fatal("expected end time stamped")
	}
	if inj.ActiveCount() != 1 {
		t.Fatalf("expected fault left active on success, got %d", inj.ActiveCount())
	}

	stored, err := orch.GetExperiment(done.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.StatusSucceeded {
		t.Fatalf("stored status %s", stored.Status)
	}
}

func TestRunExperimentValidation(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	cases := []models.Experiment{
		{Steps: []models.ExperimentStep{injectStep("a", "svc-a")}},
		{Name: "no-steps"},
		{Name: "no-step-id", Steps: []models.ExperimentStep{{Action: models.ActionInjectFault, Target: "svc-a", Params: models.StepParams{FaultType: models.FaultNetworkLatency}}}},
		{Name: "dup-ids", Steps: []models.ExperimentStep{injectStep("a", "svc-a"), injectStep("a", "svc-b")}},
		{Name: "no-fault-type", Steps: []models.ExperimentStep{{ID: "a", Action: models.ActionInjectFault, Target: "svc-a"}}},
		{Name: "no-target", Steps: []models.ExperimentStep{{ID: "a", Action: models.ActionVerifyRecovery}}},
		{Name: "bad-action", Steps: []models.ExperimentStep{{ID: "a", Action: models.StepAction("explode"), Target: "svc-a"}}},
	}
	for _, exp := range cases {
		_, err := orch.RunExperiment(context.Background(), exp)
		var verr *utils.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("experiment %q: expected validation error, got %v", exp.Name, err)
		}
	}
}

func TestSafetyCheckDisabledInjector(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{}, injector.Config{Enabled: false})

	_, err := orch.RunExperiment(context.Background(), models.Experiment{
		Name:  "blocked",
		Steps: []models.ExperimentStep{injectStep("inject", "svc-a")},
	})
	var serr *utils.SafetyCheckError
	if !errors.As(err, &serr) || serr.Check != "injection_enabled" {
		t.Fatalf("expected injection_enabled safety error, got %v", err)
	}
}

func TestSafetyCheckProtectedTarget(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{ProtectedTargets: []string{"db"}}, injector.Config{Enabled: true})

	_, err := orch.RunExperiment(context.Background(), models.Experiment{
		Name:  "touches-db",
		Steps: []models.ExperimentStep{injectStep("inject", "db")},
	})
	var serr *utils.SafetyCheckError
	if !errors.As(err, &serr) || serr.Check != "protected_target" {
		t.Fatalf("expected protected_target safety error, got %v", err)
	}
}

func TestSafetyCheckFaultBudget(t *testing.T) {
	orch, inj := newTestOrchestrator(t, Config{MaxActiveFaults: 2}, injector.Config{Enabled: true})

	if _, err := inj.Inject(models.FaultNetworkLatency, "svc-z", injector.Options{}); err != nil {
		t.Fatalf("seed fault: %v", err)
	}

	_, err := orch.RunExperiment(context.Background(), models.Experiment{
		Name:  "over-budget",
		Steps: []models.ExperimentStep{injectStep("one", "svc-a"), injectStep("two", "svc-b")},
	})
	var serr *utils.SafetyCheckError
	if !errors.As(err, &serr) || serr.Check != "fault_budget" {
		t.Fatalf("expected fault_budget safety error, got %v", err)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	orch, inj := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	done, err := orch.RunExperiment(context.Background(), models.Experiment{
		Name:   "rehearsal",
		DryRun: true,
		Steps:  []models.ExperimentStep{injectStep("inject", "svc-a")},
	})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if done.Status != models.StatusDryRunCompleted {
		t.Fatalf("expected dry_run_completed, got %s", done.Status)
	}
	if inj.ActiveCount() != 0 {
		t.Fatalf("dry run injected faults: %d active", inj.ActiveCount())
	}
	result, ok := done.Results["inject"]
	if !ok || !result.OK || result.Values["simulated"] != 1 {
		t.Fatalf("expected synthetic step result, got %+v", result)
	}
	if result.FaultID != "" {
		t.Fatalf("synthetic result carries a fault id: %+v", result)
	}
	if _, err := orch.GetExperiment(done.ID); err != nil {
		t.Fatalf("dry run not recorded: %v", err)
	}
}

func TestStopWithoutRollbackClearsFaults(t *testing.T) {
	orch, inj := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	type outcome struct {
		exp models.Experiment
		err error
	}
	results := make(chan outcome, 1)
	go func() {
		exp, err := orch.RunExperiment(context.Background(), models.Experiment{
			Name:         "stranded",
			AutoRollback: false,
			Steps: []models.ExperimentStep{
				{
					ID:       "hold",
					Action:   models.ActionInjectFault,
					Target:   "svc-a",
					Params:   models.StepParams{FaultType: models.FaultNetworkLatency, Duration: time.Minute},
					Duration: 5 * time.Second,
				},
			},
		})
		results <- outcome{exp, err}
	}()

	var runningID string
	deadline := time.Now().Add(2 * time.Second)
	for runningID == "" && time.Now().Before(deadline) {
		for _, exp := range orch.ListExperiments() {
			if exp.Status == models.StatusRunning {
				runningID = exp.ID
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if runningID == "" {
		t.Fatal("experiment never reached running state")
	}
	if err := orch.StopExperiment(runningID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case got := <-results:
		if got.err != nil {
			t.Fatalf("stopped run returned error: %v", got.err)
		}
		if got.exp.Status != models.StatusStopped {
			t.Fatalf("expected stopped, got %s", got.exp.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stopped experiment never returned")
	}
	if inj.ActiveCount() != 0 {
		t.Fatalf("stop stranded %d active faults", inj.ActiveCount())
	}
}

func TestFailedStepRollsBack(t *testing.T) {
	orch, inj := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	// A pre-existing fault makes verify_recovery fail on its target.
	if _, err := inj.Inject(models.FaultNetworkLatency, "svc-a", injector.Options{}); err != nil {
		t.Fatalf("seed fault: %v", err)
	}

	done, err := orch.RunExperiment(context.Background(), models.Experiment{
		Name:         "should-fail",
		AutoRollback: true,
		Steps: []models.ExperimentStep{
			{ID: "verify", Action: models.ActionVerifyRecovery, Target: "svc-a", Rollback: models.RollbackClearFaults},
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if done.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", done.Status)
	}
	if inj.ActiveCount() != 0 {
		t.Fatalf("rollback left %d faults active", inj.ActiveCount())
	}
}

func TestSuccessCriteriaCeilings(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	base := models.Experiment{
		Name:         "criteria",
		AutoRollback: true,
		Steps:        []models.ExperimentStep{injectStep("inject", "svc-a")},
	}

	passing := base
	passing.SuccessCriteria = map[string]float64{"injected": 1}
	done, err := orch.RunExperiment(context.Background(), passing)
	if err != nil {
		t.Fatalf("run passing: %v", err)
	}
	if done.Status != models.StatusSucceeded {
		t.Fatalf("expected succeeded with met criteria, got %s", done.Status)
	}

	exceeded := base
	exceeded.SuccessCriteria = map[string]float64{"injected": 0}
	done, err = orch.RunExperiment(context.Background(), exceeded)
	if err != nil {
		t.Fatalf("run exceeded: %v", err)
	}
	if done.Status != models.StatusFailed {
		t.Fatalf("expected failed on exceeded ceiling, got %s", done.Status)
	}

	missing := base
	missing.SuccessCriteria = map[string]float64{"no_such_metric": 1}
	done, err = orch.RunExperiment(context.Background(), missing)
	if err != nil {
		t.Fatalf("run missing: %v", err)
	}
	if done.Status != models.StatusFailed {
		t.Fatalf("expected failed on absent criteria key, got %s", done.Status)
	}
}

func TestConcurrencyCeilingAndStop(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{MaxConcurrentExperiments: 1}, injector.Config{Enabled: true})

	type outcome struct {
		exp models.Experiment
		err error
	}
	results := make(chan outcome, 1)
	go func() {
		slow := models.Experiment{
			Name:         "slow",
			AutoRollback: true,
			Steps: []models.ExperimentStep{
				{
					ID:       "hold",
					Action:   models.ActionInjectFault,
					Target:   "svc-a",
					Params:   models.StepParams{FaultType: models.FaultNetworkLatency},
					Duration: 5 * time.Second,
				},
			},
		}
		exp, err := orch.RunExperiment(context.Background(), slow)
		results <- outcome{exp, err}
	}()

	var runningID string
	deadline := time.Now().Add(2 * time.Second)
	for runningID == "" && time.Now().Before(deadline) {
		for _, exp := range orch.ListExperiments() {
			if exp.Status == models.StatusRunning {
				runningID = exp.ID
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if runningID == "" {
		t.Fatal("experiment never reached running state")
	}

	_, err := orch.RunExperiment(context.Background(), models.Experiment{
		Name:  "rejected",
		Steps: []models.ExperimentStep{injectStep("inject", "svc-b")},
	})
	if !errors.Is(err, utils.ErrMaxConcurrentExperiments) {
		t.Fatalf("expected ErrMaxConcurrentExperiments, got %v", err)
	}

	if err := orch.StopExperiment(runningID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case got := <-results:
		if got.err != nil {
			t.Fatalf("stopped run returned error: %v", got.err)
		}
		if got.exp.Status != models.StatusStopped {
			t.Fatalf("expected stopped, got %s", got.exp.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stopped experiment never returned")
	}

	// Stopping a finished experiment is a no-op; unknown ids are errors.
	if err := orch.StopExperiment(runningID); err != nil {
		t.Fatalf("stop after finish: %v", err)
	}
	if err := orch.StopExperiment("missing"); !errors.Is(err, utils.ErrExperimentNotFound) {
		t.Fatalf("expected ErrExperimentNotFound, got %v", err)
	}
}

func TestExperimentHistoryBounded(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{HistoryLimit: 2}, injector.Config{Enabled: true})

	for n := 0; n < 3; n++ {
		exp := models.Experiment{
			Name:         "burst",
			AutoRollback: true,
			Steps:        []models.ExperimentStep{injectStep("inject", "svc-a")},
			SuccessCriteria: map[string]float64{
				"injected": 1,
			},
		}
		if _, err := orch.RunExperiment(context.Background(), exp); err != nil {
			t.Fatalf("run %d: %v", n, err)
		}
	}
	if got := len(orch.ListExperiments()); got != 2 {
		t.Fatalf("expected history of 2, got %d", got)
	}
}

func TestRunCampaignCapturesFailures(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	campaign := models.Campaign{
		Name: "mixed",
		Experiments: []models.Experiment{
			{Name: "ok", Steps: []models.ExperimentStep{injectStep("inject", "svc-a")}},
			{Name: "invalid"},
		},
	}
	done, err := orch.RunCampaign(context.Background(), campaign)
	if err != nil {
		t.Fatalf("campaign: %v", err)
	}
	if done.Status != models.CampaignCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if len(done.Results) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(done.Results))
	}
	if done.Results[0].Status != models.StatusSucceeded {
		t.Fatalf("first experiment: %+v", done.Results[0])
	}
	if done.Results[1].Status != models.StatusFailed || done.Results[1].Error == "" {
		t.Fatalf("second experiment should record the validation failure: %+v", done.Results[1])
	}

	stored, err := orch.GetCampaign(done.ID)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if len(stored.Results) != 2 {
		t.Fatalf("stored campaign lost results: %+v", stored)
	}
}

func TestRunCampaignValidation(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	var verr *utils.ValidationError
	if _, err := orch.RunCampaign(context.Background(), models.Campaign{}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unnamed campaign, got %v", err)
	}
	if _, err := orch.RunCampaign(context.Background(), models.Campaign{Name: "empty"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty campaign, got %v", err)
	}
}

func TestScheduleCampaignFires(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	id, err := orch.ScheduleCampaign(models.Campaign{
		Name:     "nightly",
		Schedule: &models.Schedule{Interval: 20 * time.Millisecond},
		Experiments: []models.Experiment{
			{Name: "nightly-check", Steps: []models.ExperimentStep{injectStep("inject", "svc-a")}},
		},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := orch.GetCampaign(id)
		if err != nil {
			t.Fatalf("get campaign: %v", err)
		}
		if stored.Status == models.CampaignCompleted {
			if len(stored.Results) != 1 {
				t.Fatalf("expected 1 outcome, got %d", len(stored.Results))
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scheduled campaign never ran")
}

func TestStopCampaignCancelsSchedule(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	id, err := orch.ScheduleCampaign(models.Campaign{
		Name:     "deferred",
		Schedule: &models.Schedule{Interval: time.Hour},
		Experiments: []models.Experiment{
			{Name: "deferred-check", Steps: []models.ExperimentStep{injectStep("inject", "svc-a")}},
		},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	orch.StopCampaign(id)
	orch.StopCampaign("unknown")

	stored, err := orch.GetCampaign(id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if stored.Status != models.CampaignScheduled {
		t.Fatalf("cancelled campaign should stay scheduled, got %s", stored.Status)
	}
}

func TestTemplatesAreValid(t *testing.T) {
	for _, exp := range []models.Experiment{
		DatabaseFailoverExperiment("db"),
		NetworkPartitionExperiment("svc-a", time.Second),
		CascadePreventionExperiment("db", 5),
	} {
		if err := validateExperiment(exp); err != nil {
			t.Fatalf("template %q invalid: %v", exp.Name, err)
		}
		if !exp.AutoRollback {
			t.Fatalf("template %q missing auto-rollback", exp.Name)
		}
	}
}

func TestCascadePreventionTemplateRunsGreen(t *testing.T) {
	orch, _ := newTestOrchestrator(t, Config{}, injector.Config{Enabled: true})

	// worker has no dependents, so the cascade stays inside any ceiling.
	done, err := orch.RunExperiment(context.Background(), CascadePreventionExperiment("worker", 5))
	if err != nil {
		t.Fatalf("run template: %v", err)
	}
	if done.Status != models.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s (results %+v)", done.Status, done.Results)
	}
	trigger := done.Results["trigger-cascade"]
	if trigger.CascadeID == "" || trigger.Values["blast_radius"] != 1 {
		t.Fatalf("unexpected cascade result: %+v", trigger)
	}
}
