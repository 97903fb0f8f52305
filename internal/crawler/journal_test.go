package crawler

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_KeepsNewest(t *testing.T) {
	t.Parallel()

	j := NewJournal(3)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		j.Add(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("msg %d", i))
	}

	entries := j.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "msg 2", entries[0].Message)
	assert.Equal(t, "msg 4", entries[2].Message)
	assert.True(t, entries[0].Time.Before(entries[2].Time))
}

func TestJournal_Tail(t *testing.T) {
	t.Parallel()

	j := NewJournal(10)
	now := time.Now()
	for i := 0; i < 4; i++ {
		j.Add(now, fmt.Sprintf("msg %d", i))
	}

	tail := j.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "msg 2", tail[0].Message)
	assert.Equal(t, "msg 3", tail[1].Message)

	assert.Len(t, j.Tail(0), 4)
	assert.Len(t, j.Tail(50), 4)
}

func TestJournal_Empty(t *testing.T) {
	t.Parallel()

	j := NewJournal(0)
	assert.Empty(t, j.Entries())
	j.Add(time.Now(), "only")
	j.Add(time.Now(), "latest")
	assert.Equal(t, "latest", j.Entries()[0].Message)
}
