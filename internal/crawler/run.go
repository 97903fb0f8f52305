package crawler

import (
	"sync"
	"time"

	"peermap/internal/model"
	"peermap/internal/topology"
)

// Run is the state of a single discovery run. Every run starts from a
// fresh Run; nothing is carried over from earlier runs.
type Run struct {
	ID string

	nodes   *topology.Registry
	edges   *topology.EdgeSet
	visited *topology.VisitSet
	journal *Journal

	mu         sync.RWMutex
	status     model.Status
	iterations int
	startedAt  time.Time
	finishedAt time.Time
}

func newRun(id string, logSize int, now time.Time) *Run {
	return &Run{
		ID:        id,
		nodes:     topology.NewRegistry(),
		edges:     topology.NewEdgeSet(),
		visited:   topology.NewVisitSet(),
		journal:   NewJournal(logSize),
		status:    model.StatusDiscovering,
		startedAt: now,
	}
}

// Status returns the run's lifecycle state.
func (r *Run) Status() model.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Run) completeIteration() {
	r.mu.Lock()
	r.iterations++
	r.mu.Unlock()
}

func (r *Run) finalize(now time.Time) {
	r.mu.Lock()
	r.status = model.StatusComplete
	r.finishedAt = now
	r.mu.Unlock()
}

// Snapshot reads the run's current state. During an active run the node
// and edge views may be a few updates apart.
func (r *Run) Snapshot() model.Snapshot {
	r.mu.RLock()
	status, iterations := r.status, r.iterations
	started, finished := r.startedAt, r.finishedAt
	r.mu.RUnlock()

	nodes := r.nodes.Nodes()
	edges := r.edges.Edges()
	accessible := 0
	for _, n := range nodes {
		if n.RPCAccessible {
			accessible++
		}
	}

	return model.Snapshot{
		RunID:  r.ID,
		Status: status,
		Nodes:  nodes,
		Edges:  edges,
		Stats: model.Stats{
			TotalNodes:    len(nodes),
			TotalEdges:    len(edges),
			AccessibleRPC: accessible,
			Iterations:    iterations,
		},
		StartedAt:  started,
		FinishedAt: finished,
	}
}

// emptySnapshot is what readers see before the first run.
func emptySnapshot() model.Snapshot {
	return model.Snapshot{
		Status: model.StatusIdle,
		Nodes:  map[string]model.Node{},
		Edges:  []model.Edge{},
	}
}
