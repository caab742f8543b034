package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadchat/internal/models"
)

func TestFeedKeepsOnlyLatestSnapshot(t *testing.T) {
	f := NewFeed(nil)
	f.Publish(Snapshot{{ID: "old"}})
	f.Publish(Snapshot{{ID: "new"}})

	snap := <-f.Snapshots()
	require.Len(t, snap, 1)
	assert.Equal(t, "new", snap[0].ID)

	select {
	case s := <-f.Snapshots():
		t.Fatalf("unexpected extra snapshot %v", s)
	default:
	}
}

func TestFeedCloseIsIdempotent(t *testing.T) {
	calls := 0
	f := NewFeed(func() { calls++ })

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, 1, calls)

	_, ok := <-f.Snapshots()
	assert.False(t, ok, "channel should be closed")

	// publishing after close must not panic
	f.Publish(Snapshot{})
}

func TestNewIDsAreUniqueAndOrdered(t *testing.T) {
	a := NewID()
	time.Sleep(2 * time.Millisecond)
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestNewThread(t *testing.T) {
	now := time.UnixMilli(42)
	th := NewThread("id1", now)
	assert.Equal(t, models.DefaultTitle, th.Title)
	assert.Equal(t, "", th.LastMessage)
	assert.Equal(t, now, th.Timestamp)
	assert.Empty(t, th.Messages)
}
