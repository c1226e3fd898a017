package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// Registry is the catalog of fault-type definitions. Built-in entries are
// installed at construction; custom entries overlay them by id.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger
	defs   map[string]models.FaultDefinition
}

// Catalog is the aggregated view over all definitions.
type Catalog struct {
	Total      int
	Enabled    int
	ByCategory map[string][]string
	FaultTypes []models.FaultType
}

// New constructs a Registry seeded with the built-in fault catalog.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger: logger,
		defs:   make(map[string]models.FaultDefinition),
	}
	for _, def := range builtinDefinitions() {
		r.defs[def.ID] = def
	}
	return r
}

// Register inserts or overwrites a custom definition. Built-ins keep their
// ids, so a custom entry with the same id shadows the built-in.
func (r *Registry) Register(def models.FaultDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("definition id is required")
	}
	if def.Type == "" {
		return fmt.Errorf("definition %s: fault type is required", def.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
	r.logger.Debug("fault definition registered", slog.String("id", def.ID), slog.String("type", string(def.Type)))
	return nil
}

// Get returns the definition with the given id.
func (r *Registry) Get(id string) (models.FaultDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return models.FaultDefinition{}, fmt.Errorf("definition %s: %w", id, utils.ErrUnknownFaultType)
	}
	return def, nil
}

// GetByType returns the first enabled definition for the given fault type.
func (r *Registry) GetByType(ft models.FaultType) (models.FaultDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.defs {
		if def.Type == ft {
			return def, nil
		}
	}
	return models.FaultDefinition{}, fmt.Errorf("fault type %s: %w", ft, utils.ErrUnknownFaultType)
}

// List returns definitions sorted by id, optionally filtered by category.
func (r *Registry) List(category string) []models.FaultDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.FaultDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		if category != "" && !strings.EqualFold(def.Category, category) {
			continue
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Catalog aggregates counts, categories, and distinct fault types.
func (r *Registry) Catalog() Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cat := Catalog{ByCategory: make(map[string][]string)}
	typeSet := make(map[models.FaultType]struct{})
	for _, def := range r.defs {
		cat.Total++
		if def.Enabled {
			cat.Enabled++
		}
		cat.ByCategory[def.Category] = append(cat.ByCategory[def.Category], def.ID)
		typeSet[def.Type] = struct{}{}
	}
	for _, ids := range cat.ByCategory {
		sort.Strings(ids)
	}
	for ft := range typeSet {
		cat.FaultTypes = append(cat.FaultTypes, ft)
	}
	sort.Slice(cat.FaultTypes, func(i, j int) bool { return cat.FaultTypes[i] < cat.FaultTypes[j] })
	return cat
}

// SetEnabled toggles a definition on or off.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.defs[id]
	if !ok {
		return fmt.Errorf("definition %s: %w", id, utils.ErrUnknownFaultType)
	}
	def.Enabled = enabled
	r.defs[id] = def
	return nil
}

// Enabled reports whether the given fault type has at least one enabled definition.
func (r *Registry) Enabled(ft models.FaultType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.defs {
		if def.Type == ft && def.Enabled {
			return true
		}
	}
	return false
}

// EnabledTypes returns the sorted fault types with at least one enabled definition.
func (r *Registry) EnabledTypes() []models.FaultType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[models.FaultType]struct{})
	for _, def := range r.defs {
		if def.Enabled {
			set[def.Type] = struct{}{}
		}
	}
	types := make([]models.FaultType, 0, len(set))
	for ft := range set {
		types = append(types, ft)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
