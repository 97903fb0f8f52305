package topology

import "sync"

// VisitSet tracks the RPC addresses already queried in a run.
type VisitSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitSet returns an empty visit set.
func NewVisitSet() *VisitSet {
	return &VisitSet{seen: make(map[string]struct{})}
}

// MarkVisited records addr and reports whether the caller is the first to
// do so. Only the first caller may query the address.
func (v *VisitSet) MarkVisited(addr string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[addr]; ok {
		return false
	}
	v.seen[addr] = struct{}{}
	return true
}

// Contains reports whether addr was visited.
func (v *VisitSet) Contains(addr string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[addr]
	return ok
}

// Len returns the number of visited addresses.
func (v *VisitSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
