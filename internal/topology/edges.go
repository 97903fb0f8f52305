package topology

import (
	"sync"

	"peermap/internal/model"
)

type edgeKey struct {
	lo, hi string
}

func canonical(a, b string) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{lo: a, hi: b}
}

// EdgeSet is a deduplicated set of undirected connections.
type EdgeSet struct {
	mu    sync.RWMutex
	seen  map[edgeKey]struct{}
	edges []model.Edge
}

// NewEdgeSet returns an empty edge set.
func NewEdgeSet() *EdgeSet {
	return &EdgeSet{seen: make(map[edgeKey]struct{})}
}

// Add records the connection a-b and reports whether it was new. Empty
// endpoints and self-loops are ignored.
func (e *EdgeSet) Add(a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}
	key := canonical(a, b)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seen[key]; ok {
		return false
	}
	e.seen[key] = struct{}{}
	e.edges = append(e.edges, model.Edge{Source: a, Target: b})
	return true
}

// Edges returns a copy of the recorded edges in insertion order.
func (e *EdgeSet) Edges() []model.Edge {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Edge, len(e.edges))
	copy(out, e.edges)
	return out
}

// Len returns the number of recorded edges.
func (e *EdgeSet) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.edges)
}
