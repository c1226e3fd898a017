package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

func TestBuiltinCatalogCoversAllFaultTypes(t *testing.T) {
	reg := New(nil)
	catalog := reg.Catalog()
	if catalog.Total != 11 {
		t.Fatalf("expected 11 built-in definitions, got %d", catalog.Total)
	}
	if catalog.Enabled != catalog.Total {
		t.Fatalf("expected all built-ins enabled, got %d of %d", catalog.Enabled, catalog.Total)
	}
	if len(catalog.FaultTypes) != 11 {
		t.Fatalf("expected 11 distinct fault types, got %d", len(catalog.FaultTypes))
	}
}

func TestBuiltinPresetsAreMonotonic(t *testing.T) {
	reg := New(nil)
	for _, def := range reg.List("") {
		for key := range def.Presets[models.SeverityLow] {
			previous := -1.0
			for _, severity := range models.Severities {
				value, ok := def.Presets[severity][key]
				if !ok {
					t.Fatalf("%s: preset %s missing for %s", def.ID, key, severity)
				}
				if value < previous {
					t.Fatalf("%s: preset %s decreases at %s (%.2f < %.2f)", def.ID, key, severity, value, previous)
				}
				previous = value
			}
		}
	}
}

func TestGetUnknownDefinition(t *testing.T) {
	reg := New(nil)
	if _, err := reg.Get("no-such-fault"); !errors.Is(err, utils.ErrUnknownFaultType) {
		t.Fatalf("expected ErrUnknownFaultType, got %v", err)
	}
	if _, err := reg.GetByType(models.FaultType("volcano")); !errors.Is(err, utils.ErrUnknownFaultType) {
		t.Fatalf("expected ErrUnknownFaultType, got %v", err)
	}
}

func TestSetEnabledTogglesType(t *testing.T) {
	reg := New(nil)
	def, err := reg.GetByType(models.FaultClockSkew)
	if err != nil {
		t.Fatalf("get by type: %v", err)
	}
	if err := reg.SetEnabled(def.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if reg.Enabled(models.FaultClockSkew) {
		t.Fatal("expected clock_skew disabled")
	}
	for _, ft := range reg.EnabledTypes() {
		if ft == models.FaultClockSkew {
			t.Fatal("disabled type still listed as enabled")
		}
	}
	if err := reg.SetEnabled(def.ID, true); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	if !reg.Enabled(models.FaultClockSkew) {
		t.Fatal("expected clock_skew re-enabled")
	}
}

func TestListFiltersByCategory(t *testing.T) {
	reg := New(nil)
	network := reg.List("network")
	if len(network) == 0 {
		t.Fatal("expected network-category definitions")
	}
	for _, def := range network {
		if def.Category != "network" {
			t.Fatalf("unexpected category %q in filtered list", def.Category)
		}
	}
	all := reg.List("")
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("list not sorted: %q before %q", all[i-1].ID, all[i].ID)
		}
	}
}

func TestLoadCatalogOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faults.yaml")
	pack := `faults:
  - id: custom-latency
    name: Custom latency
    type: network_latency
    category: network
    presets:
      low: {latency_ms: 10}
      medium: {latency_ms: 50}
      high: {latency_ms: 100}
      critical: {latency_ms: 500}
    enabled: true
`
	if err := os.WriteFile(path, []byte(pack), 0o600); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	reg := New(nil)
	before := reg.Catalog().Total
	if err := reg.LoadCatalog(path); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if got := reg.Catalog().Total; got != before+1 {
		t.Fatalf("expected %d definitions after overlay, got %d", before+1, got)
	}
	if _, err := reg.Get("custom-latency"); err != nil {
		t.Fatalf("custom definition missing: %v", err)
	}
}

func TestLoadCatalogMissingFileIsNotAnError(t *testing.T) {
	reg := New(nil)
	if err := reg.LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing catalog should be tolerated, got %v", err)
	}
}
