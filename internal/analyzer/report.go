package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
)

// SPOF is a single point of failure discovered through graph analysis.
type SPOF struct {
	Component  string  `json:"component"`
	RiskScore  float64 `json:"risk_score"`
	Dependents int     `json:"dependents"`
	Reason     string  `json:"reason"`
	Mitigation string  `json:"mitigation"`
}

// Report is the full resilience report for a time range.
type Report struct {
	GeneratedAt     time.Time                `json:"generated_at"`
	Range           models.TimeRange         `json:"range"`
	Score           float64                  `json:"score"`
	Metrics         models.ResilienceMetrics `json:"metrics"`
	Trend           string                   `json:"trend"`
	SPOFs           []SPOF                   `json:"spofs"`
	Strengths       []string                 `json:"strengths"`
	Weaknesses      []string                 `json:"weaknesses"`
	Recommendations []string                 `json:"recommendations"`
	TestsRun        int                      `json:"tests_run"`
	TestsPassed     int                      `json:"tests_passed"`
}

// IdentifySPOFs flags components whose failure reaches a disproportionate
// share of the graph, or whose criticality marks them irreplaceable.
func (a *Analyzer) IdentifySPOFs(ctx context.Context) ([]SPOF, error) {
	blasts := make(map[string]simulator.BlastRadius)
	g, err := a.simulator.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("dependency graph: %w", err)
	}
	components := g.Components()
	for _, component := range components {
		blast, err := a.simulator.AnalyzeBlastRadius(ctx, component, models.FaultTypeAll)
		if err != nil {
			return nil, err
		}
		blasts[component] = blast
	}

	var spofs []SPOF
	for _, component := range components {
		blast := blasts[component]
		dependents := blast.Total - 1
		critical := g.Criticality(component) >= 8
		wideBlast := len(components) > 1 && float64(dependents) >= float64(len(components)-1)*0.5
		if !critical && !wideBlast {
			continue
		}
		reason := "high criticality"
		if wideBlast {
			reason = fmt.Sprintf("failure reaches %d of %d components", dependents, len(components)-1)
		}
		spofs = append(spofs, SPOF{
			Component:  component,
			RiskScore:  blast.RiskScore,
			Dependents: dependents,
			Reason:     reason,
			Mitigation: "add a redundant instance and health-checked failover",
		})
	}
	sort.Slice(spofs, func(i, j int) bool {
		if spofs[i].RiskScore != spofs[j].RiskScore {
			return spofs[i].RiskScore > spofs[j].RiskScore
		}
		return spofs[i].Component < spofs[j].Component
	})
	return spofs, nil
}

// RecommendImprovements derives prioritized recommendations from the given
// metrics sample. A healthy system still gets a confirmation line.
func RecommendImprovements(m models.ResilienceMetrics) []string {
	var recs []string
	if m.MTTR > 5000 {
		recs = append(recs, "mean recovery exceeds 5s; automate recovery for the slowest components")
	}
	if m.CascadeResistance < 0.7 {
		recs = append(recs, "cascades spread too far; add circuit breakers between service tiers")
	}
	if m.Availability < 0.99 {
		recs = append(recs, "availability is below 99%; add redundancy for critical components")
	}
	if m.RecoverySuccessRate < 0.9 {
		recs = append(recs, "recovery frequently fails; review runbooks and retry policies")
	}
	if m.DataConsistencyScore < 0.95 {
		recs = append(recs, "consistency degrades under faults; add write verification and repair jobs")
	}
	if len(recs) == 0 {
		recs = append(recs, "no critical weaknesses detected; keep the current chaos cadence")
	}
	return recs
}

// GenerateReport assembles the resilience report for a range. It never
// injects anything; all inputs come from recorded metrics and stored
// cascades, so an empty history still yields a valid report.
func (a *Analyzer) GenerateReport(ctx context.Context, tr models.TimeRange) (Report, error) {
	report := Report{
		GeneratedAt: time.Now().UTC(),
		Range:       tr,
		Metrics:     a.snapshotMetrics(),
	}
	report.Score = a.CalculateResilienceScore()
	report.Trend = a.trend()

	spofs, err := a.IdentifySPOFs(ctx)
	if err != nil {
		return Report{}, err
	}
	report.SPOFs = spofs
	report.Recommendations = RecommendImprovements(report.Metrics)

	if report.Metrics.Availability >= 0.99 {
		report.Strengths = append(report.Strengths, "availability holds above 99% under injected faults")
	}
	if report.Metrics.CascadeResistance >= 0.7 {
		report.Strengths = append(report.Strengths, "cascades stay contained")
	} else {
		report.Weaknesses = append(report.Weaknesses, "cascades reach a large share of the graph")
	}
	if report.Metrics.MTTR > 5000 {
		report.Weaknesses = append(report.Weaknesses, "recovery is slow relative to the 5s target")
	}
	for _, spof := range spofs {
		report.Weaknesses = append(report.Weaknesses, fmt.Sprintf("%s is a single point of failure", spof.Component))
	}

	for _, result := range a.Results() {
		report.TestsRun++
		if result.Success {
			report.TestsPassed++
		}
	}
	return report, nil
}

// trend compares the older and newer halves of the metrics history.
func (a *Analyzer) trend() string {
	a.mu.Lock()
	history := append([]models.ResilienceMetrics(nil), a.history...)
	a.mu.Unlock()
	if len(history) < 4 {
		return "stable"
	}
	half := len(history) / 2
	older := avgAvailability(history[:half])
	newer := avgAvailability(history[half:])
	switch {
	case newer > older+0.01:
		return "improving"
	case newer < older-0.01:
		return "degrading"
	default:
		return "stable"
	}
}

func avgAvailability(samples []models.ResilienceMetrics) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s.Availability
	}
	return sum / float64(len(samples))
}
