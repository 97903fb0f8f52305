package topology

import (
	"sort"
	"sync"

	"github.com/twmb/murmur3"

	"peermap/internal/model"
)

const shardCount = 16

// Update carries optional attribute changes for an existing node. A nil
// field leaves the stored value untouched.
type Update struct {
	Reachable  bool
	AppVersion *string
	Height     *int64
}

// Registry is the authoritative node-ID to Node mapping for a run.
// Nodes are never removed; updates only move attributes forward.
type Registry struct {
	shards [shardCount]*shard
}

type shard struct {
	mu    sync.RWMutex
	nodes map[string]*model.Node
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{nodes: make(map[string]*model.Node)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	return r.shards[murmur3.Sum32([]byte(id))%shardCount]
}

// InsertIfAbsent stores n when its ID is unknown and reports whether it was
// added. New nodes always start unreachable with no app version or height;
// use MergeUpdate to record those.
func (r *Registry) InsertIfAbsent(n model.Node) bool {
	if n.ID == "" {
		return false
	}
	s := r.shardFor(n.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[n.ID]; ok {
		return false
	}
	n.RPCAccessible = false
	n.AppVersion = nil
	n.Height = nil
	s.nodes[n.ID] = &n
	return true
}

// MergeUpdate applies u to the node with the given ID. Reachability is
// monotonic and absent optional values never erase present ones. It returns
// false when the node is unknown.
func (r *Registry) MergeUpdate(id string, u Update) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	if u.Reachable {
		n.RPCAccessible = true
	}
	if u.AppVersion != nil {
		v := *u.AppVersion
		n.AppVersion = &v
	}
	if u.Height != nil {
		h := *u.Height
		n.Height = &h
	}
	return true
}

// Get returns a copy of the node with the given ID.
func (r *Registry) Get(id string) (model.Node, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	return clone(n), true
}

// Len returns the number of known nodes.
func (r *Registry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.nodes)
		s.mu.RUnlock()
	}
	return total
}

// Nodes returns a copy of every known node keyed by ID.
func (r *Registry) Nodes() map[string]model.Node {
	out := make(map[string]model.Node)
	r.each(func(n *model.Node) {
		out[n.ID] = clone(n)
	})
	return out
}

// List returns a copy of every node matching keep, sorted by ID.
func (r *Registry) List(keep func(model.Node) bool) []model.Node {
	var out []model.Node
	r.each(func(n *model.Node) {
		c := clone(n)
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unreachable returns the nodes not yet confirmed reachable.
func (r *Registry) Unreachable() []model.Node {
	return r.List(func(n model.Node) bool { return !n.RPCAccessible })
}

// CountAccessible returns the number of reachable nodes.
func (r *Registry) CountAccessible() int {
	count := 0
	r.each(func(n *model.Node) {
		if n.RPCAccessible {
			count++
		}
	})
	return count
}

// clone copies n including its optional fields, so callers never alias
// registry storage.
func clone(n *model.Node) model.Node {
	c := *n
	if n.AppVersion != nil {
		v := *n.AppVersion
		c.AppVersion = &v
	}
	if n.Height != nil {
		h := *n.Height
		c.Height = &h
	}
	return c
}

// each visits every node one shard at a time. The registry as a whole is
// not frozen, so concurrent inserts may or may not be observed.
func (r *Registry) each(fn func(*model.Node)) {
	for _, s := range r.shards {
		s.mu.RLock()
		for _, n := range s.nodes {
			fn(n)
		}
		s.mu.RUnlock()
	}
}
