package graph

import (
	"context"
	"sort"
	"strings"
)

// DefaultCriticality is assumed for components absent from the criticality table.
const DefaultCriticality = 5.0

// Edge is one directed "depends-on" relation: Target depends on Source, so a
// failure in Source can propagate to Target.
type Edge struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Graph is a read-only snapshot of the modeled system topology.
type Graph struct {
	nodes        []string
	dependents   map[string][]string
	dependencies map[string][]string
	criticality  map[string]float64
}

// Provider supplies the dependency graph consumed by the cascade simulator.
// Implementations must return snapshots that are safe for concurrent reads.
type Provider interface {
	Snapshot(ctx context.Context) (*Graph, error)
}

// New builds a Graph from nodes, edges, and an optional criticality table.
func New(nodes []string, edges []Edge, criticality map[string]float64) *Graph {
	g := &Graph{
		dependents:   make(map[string][]string),
		dependencies: make(map[string][]string),
		criticality:  make(map[string]float64, len(criticality)),
	}
	seen := make(map[string]struct{})
	add := func(node string) {
		if node == "" {
			return
		}
		if _, ok := seen[node]; ok {
			return
		}
		seen[node] = struct{}{}
		g.nodes = append(g.nodes, node)
	}
	for _, node := range nodes {
		add(node)
	}
	for _, edge := range edges {
		add(edge.Source)
		add(edge.Target)
		g.dependents[edge.Source] = append(g.dependents[edge.Source], edge.Target)
		g.dependencies[edge.Target] = append(g.dependencies[edge.Target], edge.Source)
	}
	for node, score := range criticality {
		g.criticality[node] = score
	}
	sort.Strings(g.nodes)
	for _, deps := range g.dependents {
		sort.Strings(deps)
	}
	for _, deps := range g.dependencies {
		sort.Strings(deps)
	}
	return g
}

// Components returns all known component identifiers.
func (g *Graph) Components() []string {
	return append([]string(nil), g.nodes...)
}

// Dependents returns the components that depend on the given one.
func (g *Graph) Dependents(component string) []string {
	return append([]string(nil), g.dependents[component]...)
}

// Dependencies returns the components the given one depends on.
func (g *Graph) Dependencies(component string) []string {
	return append([]string(nil), g.dependencies[component]...)
}

// Criticality returns the criticality score for a component, on a 0-10 scale.
func (g *Graph) Criticality(component string) float64 {
	if score, ok := g.criticality[component]; ok {
		return score
	}
	return DefaultCriticality
}

// Class buckets a component identifier into a coarse type used for
// propagation-rule matching and recovery-strategy selection.
func Class(component string) string {
	name := strings.ToLower(component)
	switch {
	case strings.Contains(name, "db") || strings.Contains(name, "database") || strings.Contains(name, "postgres") || strings.Contains(name, "mysql"):
		return "database"
	case strings.Contains(name, "cache") || strings.Contains(name, "redis") || strings.Contains(name, "valkey"):
		return "cache"
	case strings.Contains(name, "queue") || strings.Contains(name, "kafka") || strings.Contains(name, "broker"):
		return "queue"
	case strings.Contains(name, "gateway") || strings.Contains(name, "lb") || strings.Contains(name, "proxy"):
		return "gateway"
	default:
		return "service"
	}
}

// Static wraps a fixed Graph as a Provider.
type Static struct {
	graph *Graph
}

// NewStatic returns a Provider that always serves the given graph.
func NewStatic(g *Graph) *Static {
	return &Static{graph: g}
}

// Snapshot returns the wrapped graph.
func (s *Static) Snapshot(context.Context) (*Graph, error) {
	return s.graph, nil
}

// Builtin returns the example microservice topology used when no graph is
// configured. Production deployments replace this via configuration.
func Builtin() *Graph {
	edges := []Edge{
		{Source: "db", Target: "api"},
		{Source: "db", Target: "worker"},
		{Source: "cache", Target: "api"},
		{Source: "queue", Target: "worker"},
		{Source: "api", Target: "web"},
		{Source: "api", Target: "gateway"},
		{Source: "auth", Target: "gateway"},
		{Source: "gateway", Target: "web"},
	}
	criticality := map[string]float64{
		"db":      9,
		"auth":    8,
		"gateway": 8,
		"api":     7,
		"queue":   6,
		"cache":   4,
		"worker":  3,
		"web":     3,
	}
	return New(nil, edges, criticality)
}
