package simulator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// recoveryPerComponent is the flat estimate used for blast-radius analysis.
const recoveryPerComponent = 5 * time.Second

// blastDepthCap bounds the pure traversal independently of simulation depth.
const blastDepthCap = 5

// BlastRadius is the pure-traversal worst case for one component failure.
type BlastRadius struct {
	Component         string
	FailureType       models.FaultType
	Direct            []string
	Indirect          []string
	Total             int
	EstimatedRecovery time.Duration
	RiskScore         float64
}

// AnalyzeBlastRadius walks the dependency graph from the component without
// any probability filtering: every reachable dependent counts.
func (s *Simulator) AnalyzeBlastRadius(ctx context.Context, component string, failureType models.FaultType) (BlastRadius, error) {
	if component == "" {
		return BlastRadius{}, fmt.Errorf("component: %w", utils.ErrInvalidTarget)
	}
	g, err := s.provider.Snapshot(ctx)
	if err != nil {
		return BlastRadius{}, fmt.Errorf("dependency graph: %w", err)
	}

	result := BlastRadius{Component: component, FailureType: failureType}

	type entry struct {
		component string
		depth     int
	}
	visited := map[string]struct{}{component: {}}
	queue := []entry{{component, 0}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= blastDepthCap {
			continue
		}
		for _, dep := range g.Dependents(current.component) {
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			if current.depth == 0 {
				result.Direct = append(result.Direct, dep)
			} else {
				result.Indirect = append(result.Indirect, dep)
			}
			queue = append(queue, entry{dep, current.depth + 1})
		}
	}
	sort.Strings(result.Direct)
	sort.Strings(result.Indirect)

	affected := len(result.Direct) + len(result.Indirect)
	result.Total = affected + 1
	result.EstimatedRecovery = time.Duration(affected) * recoveryPerComponent

	risk := float64(affected) / 10
	if risk > 1 {
		risk = 1
	}
	if g.Criticality(component) >= 8 {
		risk += 0.2
	}
	if risk > 1 {
		risk = 1
	}
	result.RiskScore = risk
	return result, nil
}

// PredictedPath is the expected affected set for an initial failure.
type PredictedPath struct {
	InitialComponent string
	Components       []string
	Confidence       float64
	Method           string
}

// PredictCascadePath prefers historical cascades with the same initial
// component; with no usable history it falls back to graph traversal. The
// Method field reports which mode produced the answer.
func (s *Simulator) PredictCascadePath(ctx context.Context, component string) (PredictedPath, error) {
	if component == "" {
		return PredictedPath{}, fmt.Errorf("component: %w", utils.ErrInvalidTarget)
	}

	s.mu.Lock()
	counts := make(map[string]int)
	sets := make(map[string][]string)
	total := 0
	for _, id := range s.order {
		cascade, ok := s.cascades[id]
		if !ok || cascade.InitialFailure.Component != component {
			continue
		}
		total++
		affected := cascade.AffectedComponents()
		sorted := append([]string(nil), affected...)
		sort.Strings(sorted)
		key := fmt.Sprint(sorted)
		counts[key]++
		sets[key] = affected
	}
	s.mu.Unlock()

	if total > 0 {
		bestKey := ""
		bestCount := 0
		for key, count := range counts {
			if count > bestCount {
				bestKey, bestCount = key, count
			}
		}
		return PredictedPath{
			InitialComponent: component,
			Components:       sets[bestKey],
			Confidence:       float64(bestCount) / float64(total),
			Method:           "historical",
		}, nil
	}

	blast, err := s.AnalyzeBlastRadius(ctx, component, models.FaultTypeAll)
	if err != nil {
		return PredictedPath{}, err
	}
	components := append([]string{component}, blast.Direct...)
	components = append(components, blast.Indirect...)
	return PredictedPath{
		InitialComponent: component,
		Components:       components,
		Confidence:       0.4,
		Method:           "graph",
	}, nil
}

// BreakerComparison is the A/B outcome of replaying a cascade with and
// without simulated circuit breakers.
type BreakerComparison struct {
	CascadeID           string
	WithoutBreakers     int
	WithBreakers        int
	ReductionPct        float64
	PreventedComponents []string
}

// TestCircuitBreakers replays a stored cascade with propagation attenuated
// and depth reduced. The breaker run is a pruned subset of the original tree,
// so its blast radius can never exceed the unprotected one.
func (s *Simulator) TestCircuitBreakers(cascadeID string) (BreakerComparison, error) {
	s.mu.Lock()
	cascade, ok := s.cascades[cascadeID]
	if !ok {
		s.mu.Unlock()
		return BreakerComparison{}, fmt.Errorf("cascade %s: %w", cascadeID, utils.ErrCascadeNotFound)
	}
	sequence := append([]models.FailureNode(nil), cascade.FailureSequence...)
	attenuation := s.cfg.BreakerAttenuation
	depthCut := s.cfg.BreakerDepthCut
	maxDepth := 0
	for _, node := range sequence {
		if node.Depth > maxDepth {
			maxDepth = node.Depth
		}
	}
	protectedDepth := maxDepth - depthCut
	if protectedDepth < 0 {
		protectedDepth = 0
	}

	kept := make(map[string]struct{})
	var prevented []string
	for _, node := range sequence {
		if node.Depth == 0 {
			kept[node.ID] = struct{}{}
			continue
		}
		_, parentKept := kept[node.ParentID]
		if parentKept && node.Depth <= protectedDepth && s.rng.Float64() < attenuation {
			kept[node.ID] = struct{}{}
			continue
		}
		prevented = append(prevented, node.Component)
	}
	s.mu.Unlock()

	without := len(sequence)
	with := len(kept)
	comparison := BreakerComparison{
		CascadeID:           cascadeID,
		WithoutBreakers:     without,
		WithBreakers:        with,
		PreventedComponents: prevented,
	}
	if without > 0 {
		comparison.ReductionPct = float64(without-with) / float64(without) * 100
	}
	return comparison, nil
}
