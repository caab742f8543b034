package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"threadchat/internal/models"
	"threadchat/internal/store"
)

// memStore is an in-memory store.Store that records every call.
type memStore struct {
	mu      sync.Mutex
	docs    map[string]models.Thread
	feeds   []*store.Feed
	nextID  int
	calls   []string
	now     func() time.Time
	onWrite func(op, id string)

	createErr error
	updateErr error
	deleteErr error
	subErr    error
}

func newMemStore() *memStore {
	clock := time.UnixMilli(0)
	return &memStore{
		docs: map[string]models.Thread{},
		now: func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		},
	}
}

func (m *memStore) Create(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, "create")
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return "", err
	}
	if m.createErr != nil {
		m.mu.Unlock()
		return "", m.createErr
	}
	m.nextID++
	id := fmt.Sprintf("t%d", m.nextID)
	m.docs[id] = store.NewThread(id, m.now())
	m.mu.Unlock()

	m.written("create", id)
	return id, nil
}

func (m *memStore) Update(ctx context.Context, id string, u store.ThreadUpdate) error {
	m.mu.Lock()
	m.calls = append(m.calls, "update")
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.updateErr != nil {
		m.mu.Unlock()
		return m.updateErr
	}
	doc, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return store.ErrNotFound
	}
	if u.Title != "" {
		doc.Title = u.Title
	}
	doc.LastMessage = u.LastMessage
	doc.Timestamp = u.Timestamp
	doc.Messages = models.CloneMessages(u.Messages)
	m.docs[id] = doc
	m.mu.Unlock()

	m.written("update", id)
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	m.calls = append(m.calls, "delete")
	if m.deleteErr != nil {
		m.mu.Unlock()
		return m.deleteErr
	}
	delete(m.docs, id)
	m.mu.Unlock()

	m.written("delete", id)
	return nil
}

func (m *memStore) Subscribe(ctx context.Context) (store.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, m.subErr
	}
	f := store.NewFeed(nil)
	f.Publish(m.snapshotLocked())
	m.feeds = append(m.feeds, f)
	return f, nil
}

func (m *memStore) written(op, id string) {
	if m.onWrite != nil {
		m.onWrite(op, id)
	}
	m.publish()
}

func (m *memStore) publish() {
	m.mu.Lock()
	snap := m.snapshotLocked()
	feeds := append([]*store.Feed(nil), m.feeds...)
	m.mu.Unlock()
	for _, f := range feeds {
		f.Publish(snap)
	}
}

func (m *memStore) snapshotLocked() store.Snapshot {
	snap := make(store.Snapshot, 0, len(m.docs))
	for _, d := range m.docs {
		snap = append(snap, d.Clone())
	}
	sort.Slice(snap, func(i, j int) bool { return snap[i].Timestamp.Before(snap[j].Timestamp) })
	return snap
}

func (m *memStore) doc(id string) (models.Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	return d.Clone(), ok
}

func (m *memStore) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memStore) feedClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.feeds {
		select {
		case <-f.Done():
		default:
			return false
		}
	}
	return len(m.feeds) > 0
}

// scriptedCompleter answers from a fixed reply or error.
type scriptedCompleter struct {
	mu     sync.Mutex
	reply  string
	err    error
	calls  []string
	before func(message string)
}

func (c *scriptedCompleter) Complete(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, message)
	before := c.before
	c.mu.Unlock()

	if before != nil {
		before(message)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

// gatedCompleter blocks each call until a reply is released for it.
type gatedCompleter struct {
	replies map[string]chan string
}

func newGatedCompleter(messages ...string) *gatedCompleter {
	g := &gatedCompleter{replies: map[string]chan string{}}
	for _, m := range messages {
		g.replies[m] = make(chan string, 1)
	}
	return g
}

func (g *gatedCompleter) Complete(ctx context.Context, message string) (string, error) {
	ch, ok := g.replies[message]
	if !ok {
		return "", errors.New("unexpected message")
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gatedCompleter) release(message, reply string) {
	g.replies[message] <- reply
}
