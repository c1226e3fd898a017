package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// CatalogFile is the YAML root structure for custom fault packs.
type CatalogFile struct {
	Faults []models.FaultDefinition `yaml:"faults"`
}

// LoadCatalog overlays custom definitions from a YAML pack. A missing file is
// not an error so deployments can run on built-ins alone.
func (r *Registry) LoadCatalog(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read catalog: %w", err)
	}
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	for _, def := range file.Faults {
		if err := r.Register(def); err != nil {
			return fmt.Errorf("catalog entry %q: %w", def.Name, err)
		}
	}
	return nil
}
