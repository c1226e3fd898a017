package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/cache"
)

func TestNewDeduplicatesAndSorts(t *testing.T) {
	g := New(
		[]string{"api", "api", "", "db"},
		[]Edge{
			{Source: "db", Target: "api"},
			{Source: "db", Target: "worker"},
		},
		map[string]float64{"db": 9},
	)

	components := g.Components()
	want := []string{"api", "db", "worker"}
	if len(components) != len(want) {
		t.Fatalf("expected %v, got %v", want, components)
	}
	for i, c := range want {
		if components[i] != c {
			t.Fatalf("expected sorted components %v, got %v", want, components)
		}
	}
	deps := g.Dependents("db")
	if len(deps) != 2 || deps[0] != "api" || deps[1] != "worker" {
		t.Fatalf("unexpected dependents %v", deps)
	}
	if up := g.Dependencies("api"); len(up) != 1 || up[0] != "db" {
		t.Fatalf("unexpected dependencies %v", up)
	}
	if up := g.Dependencies("db"); len(up) != 0 {
		t.Fatalf("db should have no dependencies, got %v", up)
	}
	if g.Criticality("db") != 9 {
		t.Fatalf("expected criticality 9, got %.0f", g.Criticality("db"))
	}
	if g.Criticality("api") != DefaultCriticality {
		t.Fatalf("expected default criticality, got %.0f", g.Criticality("api"))
	}
}

func TestBuiltinTopology(t *testing.T) {
	g := Builtin()
	if len(g.Components()) != 8 {
		t.Fatalf("expected 8 components, got %v", g.Components())
	}
	deps := g.Dependents("db")
	if len(deps) != 2 || deps[0] != "api" || deps[1] != "worker" {
		t.Fatalf("unexpected db dependents %v", deps)
	}
	if g.Criticality("db") != 9 || g.Criticality("web") != 3 {
		t.Fatalf("unexpected criticality table: db=%.0f web=%.0f", g.Criticality("db"), g.Criticality("web"))
	}
	if deps := g.Dependents("web"); len(deps) != 0 {
		t.Fatalf("web should be a leaf, got %v", deps)
	}
	if up := g.Dependencies("web"); len(up) != 2 || up[0] != "api" || up[1] != "gateway" {
		t.Fatalf("unexpected web dependencies %v", up)
	}
}

func TestClassBuckets(t *testing.T) {
	cases := map[string]string{
		"db":            "database",
		"postgres-main": "database",
		"redis":         "cache",
		"valkey-0":      "cache",
		"kafka-broker":  "queue",
		"api-gateway":   "gateway",
		"lb-edge":       "gateway",
		"payments":      "service",
	}
	for component, want := range cases {
		if got := Class(component); got != want {
			t.Fatalf("Class(%q) = %q, want %q", component, got, want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	doc := `nodes: [metrics]
edges:
  - source: db
    target: api
criticality:
  db: 9
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write topology: %v", err)
	}

	g, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(g.Components()) != 3 {
		t.Fatalf("expected api, db, metrics; got %v", g.Components())
	}
	if g.Criticality("db") != 9 {
		t.Fatalf("criticality lost in load: %.0f", g.Criticality("db"))
	}
}

func TestLoadFileRejectsEmptyTopology(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("nodes: []\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for empty topology")
	}
}

// memoryCache is a minimal in-process cache.Provider for provider tests.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if payload, ok := m.data[key]; ok {
		return payload, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	_, exists := m.data[key]
	m.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memoryCache) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryCache) Close() error { return nil }

func TestRemoteProviderFetchesAndCaches(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/api/v1/topology" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(remoteGraphResponse{
			Edges:       []Edge{{Source: "db", Target: "api"}},
			Criticality: map[string]float64{"db": 9},
		})
	}))
	defer server.Close()

	provider := NewRemoteProvider(server.URL, "/api/v1/topology", time.Second, newMemoryCache(), time.Minute)

	g, err := provider.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(g.Components()) != 2 || g.Criticality("db") != 9 {
		t.Fatalf("unexpected graph: %v", g.Components())
	}

	if _, err := provider.Snapshot(context.Background()); err != nil {
		t.Fatalf("cached snapshot: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected second snapshot served from cache, saw %d requests", got)
	}
}

func TestRemoteProviderRejectsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(remoteGraphResponse{})
	}))
	defer server.Close()

	provider := NewRemoteProvider(server.URL, "/api/v1/topology", time.Second, nil, 0)
	if _, err := provider.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for empty topology response")
	}
}

func TestRemoteProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewRemoteProvider(server.URL, "/api/v1/topology", time.Second, nil, 0)
	if _, err := provider.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestRemoteProviderRequiresBaseURL(t *testing.T) {
	provider := NewRemoteProvider("", "/api/v1/topology", time.Second, nil, 0)
	if _, err := provider.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error without a base URL")
	}
}
