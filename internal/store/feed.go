package store

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// NewID returns a store-assigned thread id. ULIDs sort by creation time.
func NewID() string {
	return ulid.Make().String()
}

// Feed is a Subscription backed by a one-slot channel. Publishing replaces
// any snapshot the reader has not taken yet, so a slow reader only ever sees
// the latest collection.
type Feed struct {
	mu      sync.Mutex
	ch      chan Snapshot
	done    chan struct{}
	closed  bool
	onClose func()
}

// NewFeed creates a feed. onClose runs once when the feed is closed.
func NewFeed(onClose func()) *Feed {
	return &Feed{ch: make(chan Snapshot, 1), done: make(chan struct{}), onClose: onClose}
}

// Snapshots implements Subscription.
func (f *Feed) Snapshots() <-chan Snapshot {
	return f.ch
}

// Done is closed once the feed is closed.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Publish hands snap to the reader, dropping an unread older snapshot.
// Publishing to a closed feed is a no-op.
func (f *Feed) Publish(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- snap
}

// Close implements Subscription.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.ch)
	close(f.done)
	onClose := f.onClose
	f.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}
