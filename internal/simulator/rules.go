package simulator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// RulesFile is the YAML root structure for propagation-rule packs.
type RulesFile struct {
	Rules []models.PropagationRule `yaml:"rules"`
}

// DefaultRules returns the shipped propagation rules. Specific rules come
// first; the trailing wildcard keeps propagation alive for anything else.
func DefaultRules() []models.PropagationRule {
	return []models.PropagationRule{
		{SourceType: models.FaultNetworkPartition, TargetType: "database", Probability: 1, SeverityMultiplier: 1.5, Delay: 200 * time.Millisecond},
		{SourceType: models.FaultDataCorruption, TargetType: "database", Probability: 1, SeverityMultiplier: 1.8},
		{SourceType: models.FaultThunderingHerd, TargetType: "gateway", Probability: 1, SeverityMultiplier: 1.4, Bidirectional: true},
		{SourceType: models.FaultTypeAll, TargetType: "all", Probability: 1, SeverityMultiplier: 1},
	}
}

// LoadRules replaces the active rule set from a YAML pack. A missing file
// keeps the defaults.
func (s *Simulator) LoadRules(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read rules: %w", err)
	}
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = file.Rules
	return nil
}

// Rules returns a copy of the active propagation rules.
func (s *Simulator) Rules() []models.PropagationRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PropagationRule(nil), s.rules...)
}
