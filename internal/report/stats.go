// Package report renders discovered networks for operators: text
// summaries, persistent peer lists and CSV node tables.
package report

import (
	"math"
	"sort"

	"peermap/internal/model"
)

// Summary aggregates a discovered network.
type Summary struct {
	TotalNodes int
	TotalEdges int
	Accessible int
	ByOrg      map[string]int
	ByRole     map[model.Role]int
	// Heights are taken from nodes that reported one.
	HeightCount int
	MaxHeight   int64
	P50Height   int64
}

// Summarize computes counts for nodes and edges.
func Summarize(nodes map[string]model.Node, edges []model.Edge) Summary {
	s := Summary{
		TotalNodes: len(nodes),
		TotalEdges: len(edges),
		ByOrg:      make(map[string]int),
		ByRole:     make(map[model.Role]int),
	}

	heights := make([]float64, 0, len(nodes))
	for _, n := range nodes {
		if n.RPCAccessible {
			s.Accessible++
		}
		s.ByOrg[n.Org]++
		s.ByRole[n.Role]++
		if n.Height != nil {
			heights = append(heights, float64(*n.Height))
		}
	}

	if len(heights) > 0 {
		sort.Float64s(heights)
		s.HeightCount = len(heights)
		s.MaxHeight = int64(heights[len(heights)-1])
		s.P50Height = int64(percentile(heights, 0.5))
	}
	return s
}

// Orgs returns organization names sorted alphabetically.
func (s Summary) Orgs() []string {
	out := make([]string, 0, len(s.ByOrg))
	for org := range s.ByOrg {
		out = append(out, org)
	}
	sort.Strings(out)
	return out
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
