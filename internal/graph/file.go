package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GraphFile is the YAML root structure for topology files.
type GraphFile struct {
	Nodes       []string           `yaml:"nodes"`
	Edges       []Edge             `yaml:"edges"`
	Criticality map[string]float64 `yaml:"criticality"`
}

// LoadFile reads a topology from a YAML file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	var file GraphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse graph file: %w", err)
	}
	if len(file.Edges) == 0 && len(file.Nodes) == 0 {
		return nil, fmt.Errorf("graph file %s declares no nodes or edges", path)
	}
	return New(file.Nodes, file.Edges, file.Criticality), nil
}
