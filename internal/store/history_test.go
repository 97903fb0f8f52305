package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peermap/internal/logging"
	"peermap/internal/model"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"), logging.Component(logging.NewTestLogger(t), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func snapshotAt(id string, finished time.Time, nodes int) model.Snapshot {
	s := model.Snapshot{
		RunID:      id,
		Status:     model.StatusComplete,
		Nodes:      map[string]model.Node{},
		Edges:      []model.Edge{},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
	for i := 0; i < nodes; i++ {
		key := string(rune('a' + i))
		s.Nodes[key] = model.Node{ID: key}
	}
	s.Stats.TotalNodes = nodes
	return s
}

func TestHistory_ListNewestFirst(t *testing.T) {
	t.Parallel()

	h := openTestHistory(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	// Recorded out of order on purpose; 9s and 10s also differ in digit count.
	require.NoError(t, h.Record(snapshotAt("second", base.Add(10*time.Second), 2)))
	require.NoError(t, h.Record(snapshotAt("first", base.Add(9*time.Second), 1)))
	require.NoError(t, h.Record(snapshotAt("third", base.Add(time.Hour), 3)))

	list, err := h.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].RunID)
	assert.Equal(t, "second", list[1].RunID)
	assert.Equal(t, "first", list[2].RunID)
	assert.Equal(t, 3, list[0].Stats.TotalNodes)
}

func TestHistory_Latest(t *testing.T) {
	t.Parallel()

	h := openTestHistory(t)
	_, err := h.Latest()
	assert.ErrorIs(t, err, ErrNoHistory)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.Record(snapshotAt("old", base, 1)))
	require.NoError(t, h.Record(snapshotAt("new", base.Add(time.Minute), 4)))

	latest, err := h.Latest()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.RunID)
	assert.Len(t, latest.Nodes, 4)
}

func TestHistory_ReopenKeepsRuns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenHistory(path, nil)
	require.NoError(t, err)
	require.NoError(t, h.Record(snapshotAt("kept", time.Now(), 1)))
	require.NoError(t, h.Close())

	h, err = OpenHistory(path, nil)
	require.NoError(t, err)
	defer h.Close()

	list, err := h.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kept", list[0].RunID)
}
