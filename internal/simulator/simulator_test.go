package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

func newTestSimulator(t *testing.T, cfg Config, g *graph.Graph) *Simulator {
	t.Helper()
	if g == nil {
		g = graph.Builtin()
	}
	sim := New(nil, cfg, graph.NewStatic(g), nil, nil, rand.New(rand.NewSource(1)))
	t.Cleanup(sim.Close)
	return sim
}

func chainGraph(components ...string) *graph.Graph {
	var edges []graph.Edge
	for i := 1; i < len(components); i++ {
		edges = append(edges, graph.Edge{Source: components[i-1], Target: components[i]})
	}
	return graph.New(components, edges, nil)
}

func TestSimulateCascadeDeterministicChain(t *testing.T) {
	sim := newTestSimulator(t, Config{}, chainGraph("db", "api", "web"))

	cascade, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "db",
		Type:      models.FaultProcessCrash,
	}, SimulateOptions{Probability: 1})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if cascade.BlastRadius != 3 {
		t.Fatalf("expected blast radius 3, got %d", cascade.BlastRadius)
	}
	want := []string{"web", "api", "db"}
	if len(cascade.RecoveryOrder) != len(want) {
		t.Fatalf("expected recovery order %v, got %v", want, cascade.RecoveryOrder)
	}
	for i, component := range want {
		if cascade.RecoveryOrder[i] != component {
			t.Fatalf("expected recovery order %v, got %v", want, cascade.RecoveryOrder)
		}
	}

	byID := make(map[string]models.FailureNode)
	for _, node := range cascade.FailureSequence {
		byID[node.ID] = node
	}
	for _, node := range cascade.FailureSequence {
		if node.ParentID == "" {
			if node.Depth != 0 {
				t.Fatalf("root node has depth %d", node.Depth)
			}
			continue
		}
		parent, ok := byID[node.ParentID]
		if !ok {
			t.Fatalf("node %s references unknown parent", node.Component)
		}
		if node.Depth != parent.Depth+1 {
			t.Fatalf("node %s depth %d, parent depth %d", node.Component, node.Depth, parent.Depth)
		}
		if node.Probability > parent.Probability {
			t.Fatalf("node %s probability %f exceeds parent %f", node.Component, node.Probability, parent.Probability)
		}
	}
}

func TestSimulateCascadeRespectsMaxDepth(t *testing.T) {
	components := make([]string, 8)
	for i := range components {
		components[i] = fmt.Sprintf("svc-%d", i)
	}
	sim := newTestSimulator(t, Config{}, chainGraph(components...))

	cascade, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "svc-0",
		Type:      models.FaultMemoryPressure,
	}, SimulateOptions{MaxDepth: 3, Probability: 1})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if cascade.BlastRadius != 4 {
		t.Fatalf("expected 4 nodes at depth cap 3, got %d", cascade.BlastRadius)
	}
	for _, node := range cascade.FailureSequence {
		if node.Depth > 3 {
			t.Fatalf("node %s exceeds depth cap: %d", node.Component, node.Depth)
		}
	}
}

func TestSimulateCascadeWithoutMatchingRule(t *testing.T) {
	sim := newTestSimulator(t, Config{}, chainGraph("db", "api"))

	cascade, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "db",
		Type:      models.FaultProcessCrash,
	}, SimulateOptions{
		Probability: 1,
		Rules: []models.PropagationRule{
			{SourceType: models.FaultClockSkew, TargetType: "all", Probability: 1},
		},
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if cascade.BlastRadius != 1 {
		t.Fatalf("expected containment to the initial component, got blast radius %d", cascade.BlastRadius)
	}
}

func TestSimulateCascadeBidirectionalRule(t *testing.T) {
	// web depends on gateway; a thundering herd at web hammers gateway back.
	g := graph.New(nil, []graph.Edge{{Source: "gateway", Target: "web"}}, nil)
	sim := newTestSimulator(t, Config{}, g)

	cascade, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "web",
		Type:      models.FaultThunderingHerd,
	}, SimulateOptions{Probability: 1})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if cascade.BlastRadius != 2 {
		t.Fatalf("expected upstream propagation to gateway, got blast radius %d", cascade.BlastRadius)
	}
	var upstream models.FailureNode
	for _, node := range cascade.FailureSequence {
		if node.Component == "gateway" {
			upstream = node
		}
	}
	if upstream.ID == "" || upstream.Depth != 1 {
		t.Fatalf("expected gateway at depth 1, got %+v", upstream)
	}

	// Without the bidirectional flag the same failure stays put.
	contained, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "web",
		Type:      models.FaultThunderingHerd,
	}, SimulateOptions{
		Probability: 1,
		Rules: []models.PropagationRule{
			{SourceType: models.FaultThunderingHerd, TargetType: "gateway", Probability: 1},
		},
	})
	if err != nil {
		t.Fatalf("simulate contained: %v", err)
	}
	if contained.BlastRadius != 1 {
		t.Fatalf("expected containment without bidirectional rule, got blast radius %d", contained.BlastRadius)
	}
}

func TestSimulateCascadeRejectsEmptyComponent(t *testing.T) {
	sim := newTestSimulator(t, Config{}, nil)
	if _, err := sim.SimulateCascade(context.Background(), models.InitialFailure{}, SimulateOptions{}); !errors.Is(err, utils.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestSimulateRecoveryStrategies(t *testing.T) {
	sim := newTestSimulator(t, Config{}, chainGraph("db", "api", "web"))

	cascade, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "db",
		Type:      models.FaultDiskFailure,
	}, SimulateOptions{Probability: 1})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	recovery, err := sim.SimulateRecovery(cascade.ID)
	if err != nil {
		t.Fatalf("recovery: %v", err)
	}
	if len(recovery.Steps) != 3 {
		t.Fatalf("expected 3 recovery steps, got %d", len(recovery.Steps))
	}
	strategies := make(map[string]string)
	for _, step := range recovery.Steps {
		strategies[step.Component] = step.Strategy
	}
	if strategies["db"] != "failover" {
		t.Fatalf("expected db failover, got %q", strategies["db"])
	}
	if strategies["api"] != "circuit_break" || strategies["web"] != "circuit_break" {
		t.Fatalf("expected circuit_break for services, got %+v", strategies)
	}
	if !recovery.Parallel {
		t.Fatal("expected parallel recovery when steps outnumber strategies")
	}
	if recovery.TotalDuration != 13*time.Second {
		t.Fatalf("expected 13s total recovery, got %v", recovery.TotalDuration)
	}

	stored, err := sim.GetCascade(cascade.ID)
	if err != nil {
		t.Fatalf("get cascade: %v", err)
	}
	if stored.Recovery == nil || stored.EndedAt == nil {
		t.Fatal("expected recovery result and end time stamped on the cascade")
	}
}

func TestSimulateRecoveryUnknownCascade(t *testing.T) {
	sim := newTestSimulator(t, Config{}, nil)
	if _, err := sim.SimulateRecovery("missing"); !errors.Is(err, utils.ErrCascadeNotFound) {
		t.Fatalf("expected ErrCascadeNotFound, got %v", err)
	}
}

func TestCascadeHistoryBounded(t *testing.T) {
	sim := newTestSimulator(t, Config{HistoryLimit: 2}, chainGraph("a", "b"))

	var first string
	for n := 0; n < 3; n++ {
		cascade, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
			Component: "a",
			Type:      models.FaultProcessCrash,
		}, SimulateOptions{Probability: 1})
		if err != nil {
			t.Fatalf("simulate %d: %v", n, err)
		}
		if n == 0 {
			first = cascade.ID
		}
	}

	if got := len(sim.History()); got != 2 {
		t.Fatalf("expected history of 2, got %d", got)
	}
	if _, err := sim.GetCascade(first); !errors.Is(err, utils.ErrCascadeNotFound) {
		t.Fatalf("expected oldest cascade evicted, got %v", err)
	}
}

func TestAutoRecoverTimer(t *testing.T) {
	sim := newTestSimulator(t, Config{}, chainGraph("db", "api"))

	cascade, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "db",
		Type:      models.FaultProcessCrash,
	}, SimulateOptions{Probability: 1, AutoRecover: true, RecoveryTime: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := sim.GetCascade(cascade.ID)
		if err != nil {
			t.Fatalf("get cascade: %v", err)
		}
		if stored.Recovery != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("deferred recovery never ran")
}

func TestAnalyzeBlastRadius(t *testing.T) {
	sim := newTestSimulator(t, Config{}, nil)

	blast, err := sim.AnalyzeBlastRadius(context.Background(), "db", models.FaultTypeAll)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	wantDirect := []string{"api", "worker"}
	if len(blast.Direct) != len(wantDirect) || blast.Direct[0] != "api" || blast.Direct[1] != "worker" {
		t.Fatalf("expected direct %v, got %v", wantDirect, blast.Direct)
	}
	wantIndirect := []string{"gateway", "web"}
	if len(blast.Indirect) != len(wantIndirect) || blast.Indirect[0] != "gateway" || blast.Indirect[1] != "web" {
		t.Fatalf("expected indirect %v, got %v", wantIndirect, blast.Indirect)
	}
	if blast.Total != 5 {
		t.Fatalf("expected total 5, got %d", blast.Total)
	}
	if blast.EstimatedRecovery != 20*time.Second {
		t.Fatalf("expected 20s estimated recovery, got %v", blast.EstimatedRecovery)
	}
	// 4 affected dependents plus the high-criticality boost for db.
	if blast.RiskScore < 0.59 || blast.RiskScore > 0.61 {
		t.Fatalf("expected risk score 0.6, got %.2f", blast.RiskScore)
	}
}

func TestPredictCascadePathPrefersHistory(t *testing.T) {
	sim := newTestSimulator(t, Config{}, chainGraph("db", "api", "web"))

	if _, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "db",
		Type:      models.FaultProcessCrash,
	}, SimulateOptions{Probability: 1}); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	path, err := sim.PredictCascadePath(context.Background(), "db")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if path.Method != "historical" {
		t.Fatalf("expected historical prediction, got %q", path.Method)
	}
	if path.Confidence != 1 {
		t.Fatalf("expected confidence 1 with a single consistent run, got %.2f", path.Confidence)
	}
	if len(path.Components) != 3 {
		t.Fatalf("expected 3 predicted components, got %v", path.Components)
	}
}

func TestPredictCascadePathGraphFallback(t *testing.T) {
	sim := newTestSimulator(t, Config{}, chainGraph("db", "api"))

	path, err := sim.PredictCascadePath(context.Background(), "db")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if path.Method != "graph" {
		t.Fatalf("expected graph fallback, got %q", path.Method)
	}
	if path.Confidence != 0.4 {
		t.Fatalf("expected fallback confidence 0.4, got %.2f", path.Confidence)
	}
	if len(path.Components) == 0 || path.Components[0] != "db" {
		t.Fatalf("expected prediction rooted at db, got %v", path.Components)
	}
}

func TestCircuitBreakersNeverWidenCascade(t *testing.T) {
	sim := newTestSimulator(t, Config{}, nil)

	cascade, err := sim.SimulateCascade(context.Background(), models.InitialFailure{
		Component: "db",
		Type:      models.FaultProcessCrash,
	}, SimulateOptions{Probability: 1})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	for n := 0; n < 10; n++ {
		comparison, err := sim.TestCircuitBreakers(cascade.ID)
		if err != nil {
			t.Fatalf("breaker comparison: %v", err)
		}
		if comparison.WithBreakers > comparison.WithoutBreakers {
			t.Fatalf("breakers widened the cascade: %d > %d", comparison.WithBreakers, comparison.WithoutBreakers)
		}
		if comparison.ReductionPct < 0 || comparison.ReductionPct > 100 {
			t.Fatalf("reduction out of range: %.1f", comparison.ReductionPct)
		}
	}
}

func TestCircuitBreakersUnknownCascade(t *testing.T) {
	sim := newTestSimulator(t, Config{}, nil)
	if _, err := sim.TestCircuitBreakers("missing"); !errors.Is(err, utils.ErrCascadeNotFound) {
		t.Fatalf("expected ErrCascadeNotFound, got %v", err)
	}
}

func TestLoadRulesMissingFileKeepsDefaults(t *testing.T) {
	sim := newTestSimulator(t, Config{}, nil)
	before := len(sim.Rules())
	if err := sim.LoadRules(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing rule pack should be tolerated, got %v", err)
	}
	if got := len(sim.Rules()); got != before {
		t.Fatalf("expected %d default rules, got %d", before, got)
	}
}

func TestLoadRulesReplacesRuleSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	pack := `rules:
  - source_type: process_crash
    target_type: all
    probability: 0.9
    severity_multiplier: 1.2
`
	if err := os.WriteFile(path, []byte(pack), 0o600); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	sim := newTestSimulator(t, Config{}, nil)
	if err := sim.LoadRules(path); err != nil {
		t.Fatalf("load rules: %v", err)
	}
	rules := sim.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected rule pack to replace defaults, got %d rules", len(rules))
	}
	if rules[0].SourceType != models.FaultProcessCrash || rules[0].Probability != 0.9 {
		t.Fatalf("unexpected loaded rule: %+v", rules[0])
	}
}
