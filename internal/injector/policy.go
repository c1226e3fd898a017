package injector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// Policy is a standing injection rule re-evaluated periodically. A policy
// fires only inside its local-time window and while system load stays below
// the threshold.
type Policy struct {
	ID          string
	Name        string
	FaultTypes  []models.FaultType
	Targets     []string
	StartHour   int
	EndHour     int
	MaxLoad     float64
	Probability float64
	Severity    models.Severity
	Duration    time.Duration
	Enabled     bool
}

// ApplyPolicy registers a policy and returns its id.
func (i *Injector) ApplyPolicy(p Policy) (string, error) {
	if len(p.FaultTypes) == 0 {
		return "", fmt.Errorf("policy %q declares no fault types", p.Name)
	}
	if len(p.Targets) == 0 {
		return "", fmt.Errorf("policy %q declares no targets", p.Name)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Probability <= 0 || p.Probability > 1 {
		p.Probability = 1
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.policies[p.ID] = p
	return p.ID, nil
}

// RemovePolicy deletes a policy; removing an unknown id is a no-op.
func (i *Injector) RemovePolicy(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.policies, id)
}

// Policies returns a copy of the registered policies.
func (i *Injector) Policies() []Policy {
	i.mu.Lock()
	defer i.mu.Unlock()
	policies := make([]Policy, 0, len(i.policies))
	for _, p := range i.policies {
		policies = append(policies, p)
	}
	return policies
}

// policyLoop re-evaluates every policy on a fixed interval. A failing policy
// evaluation never stops the loop.
func (i *Injector) policyLoop() {
	ticker := time.NewTicker(i.cfg.PolicyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-i.stop:
			return
		case now := <-ticker.C:
			i.evaluatePolicies(now)
		}
	}
}

func (i *Injector) evaluatePolicies(now time.Time) {
	i.mu.Lock()
	policies := make([]Policy, 0, len(i.policies))
	for _, p := range i.policies {
		policies = append(policies, p)
	}
	load := i.loadFn()
	i.mu.Unlock()

	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		if !utils.WithinHours(now, p.StartHour, p.EndHour) {
			continue
		}
		if p.MaxLoad > 0 && load > p.MaxLoad {
			continue
		}
		if i.rng.Float64() >= p.Probability {
			continue
		}
		faultType := p.FaultTypes[i.rng.Intn(len(p.FaultTypes))]
		target := p.Targets[i.rng.Intn(len(p.Targets))]
		if _, err := i.Inject(faultType, target, Options{Severity: p.Severity, Duration: p.Duration}); err != nil {
			i.logger.Debug("policy injection skipped",
				slog.String("policy", p.Name),
				slog.Any("error", err),
			)
		}
	}
}
