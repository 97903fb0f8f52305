// Package store persists discovered topology: single-file exports and the
// LevelDB run history.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"peermap/internal/model"
)

// Export is the persisted form of a discovered network.
type Export struct {
	Nodes      map[string]model.Node `json:"nodes" yaml:"nodes"`
	Edges      []model.Edge          `json:"edges" yaml:"edges"`
	ExportedAt time.Time             `json:"exported_at" yaml:"exported_at"`
}

// FromSnapshot builds an export from a run snapshot.
func FromSnapshot(s model.Snapshot) Export {
	nodes := s.Nodes
	if nodes == nil {
		nodes = map[string]model.Node{}
	}
	edges := s.Edges
	if edges == nil {
		edges = []model.Edge{}
	}
	return Export{Nodes: nodes, Edges: edges}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadExport reads an export written by SaveExport.
func LoadExport(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var exp Export
	if isYAML(path) {
		err = yaml.Unmarshal(data, &exp)
	} else {
		err = json.Unmarshal(data, &exp)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if exp.Nodes == nil {
		exp.Nodes = map[string]model.Node{}
	}
	return &exp, nil
}

// SaveExport writes exp to path as JSON, or YAML for .yaml/.yml paths.
// ExportedAt is set when empty.
func SaveExport(path string, exp *Export) error {
	if exp == nil {
		return nil
	}
	if exp.ExportedAt.IsZero() {
		exp.ExportedAt = time.Now().UTC()
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(exp)
	} else {
		data, err = json.MarshalIndent(exp, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
