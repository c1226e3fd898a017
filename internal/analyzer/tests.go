package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// Test is one repeatable resilience check. Run produces measured values;
// Criteria gives the ceiling each value must stay at or below.
type Test struct {
	Name        string
	Description string
	Run         func(ctx context.Context) (map[string]float64, error)
	Criteria    map[string]float64
}

// TestResult records one test execution.
type TestResult struct {
	Name     string
	Success  bool
	Duration time.Duration
	Values   map[string]float64
	Error    string
	RanAt    time.Time
}

// SuiteResult aggregates the results of one suite run.
type SuiteResult struct {
	Suite       string
	Results     []TestResult
	Passed      int
	Failed      int
	SuccessRate float64
	Duration    time.Duration
}

// RegisterTest adds or replaces a named test.
func (a *Analyzer) RegisterTest(t Test) error {
	if t.Name == "" {
		return &utils.ValidationError{Field: "name", Msg: "test name is required"}
	}
	if t.Run == nil {
		return &utils.ValidationError{Field: "run", Msg: "test has no run function"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tests[t.Name] = t
	return nil
}

// RegisterSuite names an ordered list of registered tests.
func (a *Analyzer) RegisterSuite(name string, tests []string) error {
	if name == "" {
		return &utils.ValidationError{Field: "name", Msg: "suite name is required"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, test := range tests {
		if _, ok := a.tests[test]; !ok {
			return &utils.ValidationError{Field: "tests", Msg: fmt.Sprintf("unknown test %q", test)}
		}
	}
	a.suites[name] = append([]string(nil), tests...)
	return nil
}

// Tests returns the registered test names, sorted.
func (a *Analyzer) Tests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.tests))
	for name := range a.tests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunTest executes one named test and evaluates its criteria. A value above
// its ceiling, a missing value, or a run error all fail the test.
func (a *Analyzer) RunTest(ctx context.Context, name string) (TestResult, error) {
	a.mu.Lock()
	test, ok := a.tests[name]
	a.mu.Unlock()
	if !ok {
		return TestResult{}, fmt.Errorf("resilience test %q not registered", name)
	}

	result := TestResult{Name: name, RanAt: time.Now().UTC()}
	start := time.Now()
	values, err := test.Run(ctx)
	result.Duration = time.Since(start)
	result.Values = values
	if err != nil {
		result.Error = err.Error()
		a.recordResult(result)
		return result, nil
	}

	result.Success = true
	for key, ceiling := range test.Criteria {
		actual, present := values[key]
		if !present || actual > ceiling {
			result.Success = false
			result.Error = fmt.Sprintf("criterion %s: got %.2f, want <= %.2f", key, actual, ceiling)
			break
		}
	}
	a.recordResult(result)
	return result, nil
}

// RunSuite executes every test in a named suite sequentially. Individual
// test failures do not abort the suite; context cancellation does.
func (a *Analyzer) RunSuite(ctx context.Context, name string) (SuiteResult, error) {
	a.mu.Lock()
	tests, ok := a.suites[name]
	a.mu.Unlock()
	if !ok {
		return SuiteResult{}, fmt.Errorf("resilience suite %q not registered", name)
	}

	suite := SuiteResult{Suite: name}
	start := time.Now()
	for _, test := range tests {
		if err := ctx.Err(); err != nil {
			return suite, err
		}
		result, err := a.RunTest(ctx, test)
		if err != nil {
			return suite, err
		}
		suite.Results = append(suite.Results, result)
		if result.Success {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}
	suite.Duration = time.Since(start)
	if total := suite.Passed + suite.Failed; total > 0 {
		suite.SuccessRate = float64(suite.Passed) / float64(total)
	}
	return suite, nil
}

// Results returns a copy of retained test results, newest last.
func (a *Analyzer) Results() []TestResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]TestResult(nil), a.results...)
}

func (a *Analyzer) recordResult(result TestResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
	if len(a.results) > a.cfg.HistoryLimit {
		a.results = a.results[len(a.results)-a.cfg.HistoryLimit:]
	}
}

// registerBuiltinTests installs the shipped library and the three standard
// suites. Registration cannot fail for the built-ins.
func (a *Analyzer) registerBuiltinTests() {
	builtins := []Test{
		{
			Name:        "single_failure",
			Description: "one low-severity crash is absorbed and cleared",
			Criteria:    map[string]float64{"recovery_ms": 5000},
			Run: func(ctx context.Context) (map[string]float64, error) {
				fault, err := a.injector.Inject(models.FaultProcessCrash, "svc-a", injector.Options{
					Severity: models.SeverityLow,
					Duration: a.cfg.SettleDelay,
				})
				if err != nil {
					return nil, err
				}
				start := time.Now()
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(a.cfg.SettleDelay):
				}
				_ = a.injector.Clear(fault.ID)
				return map[string]float64{
					"faults_injected": 1,
					"recovery_ms":     float64(time.Since(start).Milliseconds()),
				}, nil
			},
		},
		{
			Name:        "cascade_containment",
			Description: "a crash cascade stays inside the expected blast radius",
			Criteria:    map[string]float64{"blast_radius": 10, "max_depth": 5},
			Run: func(ctx context.Context) (map[string]float64, error) {
				cascade, err := a.simulator.SimulateCascade(ctx, models.InitialFailure{
					Component: "db",
					Type:      models.FaultProcessCrash,
				}, simulator.SimulateOptions{MaxDepth: 3})
				if err != nil {
					return nil, err
				}
				depth := 0
				for _, node := range cascade.FailureSequence {
					if node.Depth > depth {
						depth = node.Depth
					}
				}
				return map[string]float64{
					"blast_radius": float64(cascade.BlastRadius),
					"max_depth":    float64(depth),
				}, nil
			},
		},
		{
			Name:        "partition_recovery",
			Description: "a network partition clears on demand",
			Criteria:    map[string]float64{"still_partitioned": 0},
			Run: func(ctx context.Context) (map[string]float64, error) {
				fault, err := a.injector.Inject(models.FaultNetworkPartition, "svc-b", injector.Options{
					Severity: models.SeverityHigh,
				})
				if err != nil {
					return nil, err
				}
				if err := a.injector.Clear(fault.ID); err != nil {
					return nil, err
				}
				still := 0.0
				for _, active := range a.injector.ListActive() {
					if active.ID == fault.ID {
						still = 1
					}
				}
				return map[string]float64{"still_partitioned": still}, nil
			},
		},
		{
			Name:        "recovery_speed",
			Description: "recovery from a full cascade completes within budget",
			Criteria:    map[string]float64{"recovery_total_ms": 60000},
			Run: func(ctx context.Context) (map[string]float64, error) {
				cascade, err := a.simulator.SimulateCascade(ctx, models.InitialFailure{
					Component: "api",
					Type:      models.FaultMemoryPressure,
				}, simulator.SimulateOptions{})
				if err != nil {
					return nil, err
				}
				recovery, err := a.simulator.SimulateRecovery(cascade.ID)
				if err != nil {
					return nil, err
				}
				return map[string]float64{
					"recovery_total_ms": float64(recovery.TotalDuration.Milliseconds()),
					"steps":             float64(len(recovery.Steps)),
				}, nil
			},
		},
		{
			Name:        "breaker_effectiveness",
			Description: "circuit breakers never widen a cascade",
			Criteria:    map[string]float64{"widened": 0},
			Run: func(ctx context.Context) (map[string]float64, error) {
				cascade, err := a.simulator.SimulateCascade(ctx, models.InitialFailure{
					Component: "db",
					Type:      models.FaultDiskFailure,
				}, simulator.SimulateOptions{})
				if err != nil {
					return nil, err
				}
				comparison, err := a.simulator.TestCircuitBreakers(cascade.ID)
				if err != nil {
					return nil, err
				}
				widened := 0.0
				if comparison.WithBreakers > comparison.WithoutBreakers {
					widened = 1
				}
				return map[string]float64{
					"widened":       widened,
					"reduction_pct": comparison.ReductionPct,
				}, nil
			},
		},
	}
	for _, test := range builtins {
		a.tests[test.Name] = test
	}
	a.suites["quick"] = []string{"single_failure"}
	a.suites["default"] = []string{"single_failure", "cascade_containment", "recovery_speed"}
	a.suites["comprehensive"] = []string{
		"single_failure", "cascade_containment", "partition_recovery",
		"recovery_speed", "breaker_effectiveness",
	}
}
