package crawler

import (
	"sync"
	"time"

	"peermap/internal/model"
)

// Journal is a bounded ring buffer of progress messages. Once full, the
// oldest entry is overwritten.
type Journal struct {
	mu      sync.Mutex
	entries []model.LogEntry
	start   int
	count   int
}

// NewJournal returns a journal retaining the most recent size entries.
func NewJournal(size int) *Journal {
	if size < 1 {
		size = 1
	}
	return &Journal{entries: make([]model.LogEntry, size)}
}

// Add appends a message.
func (j *Journal) Add(at time.Time, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	size := len(j.entries)
	if j.count < size {
		j.entries[(j.start+j.count)%size] = model.LogEntry{Time: at, Message: msg}
		j.count++
		return
	}
	j.entries[j.start] = model.LogEntry{Time: at, Message: msg}
	j.start = (j.start + 1) % size
}

// Entries returns the retained messages, oldest first.
func (j *Journal) Entries() []model.LogEntry {
	return j.Tail(0)
}

// Tail returns at most n of the newest messages, oldest first. n <= 0
// returns everything retained.
func (j *Journal) Tail(n int) []model.LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n <= 0 || n > j.count {
		n = j.count
	}
	out := make([]model.LogEntry, 0, n)
	size := len(j.entries)
	for i := j.count - n; i < j.count; i++ {
		out = append(out, j.entries[(j.start+i)%size])
	}
	return out
}
