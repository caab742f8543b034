// Package store defines the remote thread store the chat client synchronizes
// against: a document collection keyed by store-assigned id, with partial
// updates, whole-document deletes and a push subscription of full snapshots.
package store

import (
	"context"
	"errors"
	"time"

	"threadchat/internal/models"
)

// Collection is the name of the thread document collection.
const Collection = "threads"

// ErrNotFound is returned when a write targets a thread that does not exist.
var ErrNotFound = errors.New("thread not found")

// Snapshot is a full copy of the thread collection ordered by timestamp
// ascending, as pushed by a subscription.
type Snapshot []models.Thread

// ThreadUpdate is a partial-field write. Title is only written when
// non-empty. An empty Messages list is stored as absent.
type ThreadUpdate struct {
	Title       string
	LastMessage string
	Timestamp   time.Time
	Messages    []models.Message
}

// Subscription is a standing, non-restartable stream of snapshots. Close
// releases it; the Snapshots channel is closed afterwards.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Close() error
}

// Store is the remote thread store.
type Store interface {
	// Create pushes a new empty thread and returns its assigned id.
	Create(ctx context.Context) (string, error)
	Update(ctx context.Context, id string, u ThreadUpdate) error
	Delete(ctx context.Context, id string) error
	// Subscribe delivers the current collection immediately and again after
	// every change until the subscription is closed or ctx is done.
	Subscribe(ctx context.Context) (Subscription, error)
}

// NewThread returns the document written by Create.
func NewThread(id string, now time.Time) models.Thread {
	return models.Thread{
		ID:        id,
		Title:     models.DefaultTitle,
		Timestamp: now,
		Messages:  []models.Message{},
	}
}
