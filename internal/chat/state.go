// Package chat keeps the client's view of the thread store in sync and runs
// the message send workflow.
//
// Two components share one State: the Synchronizer replaces the thread
// projection whenever the store pushes a snapshot, and the Dispatcher applies
// optimistic updates while a send is in flight. Each mutation is atomic but
// the two sources are not ordered against each other; the later write wins.
package chat

import (
	"sync"

	"threadchat/internal/models"
)

// View is a point-in-time copy of everything the UI renders.
type View struct {
	Threads  []models.Thread
	ActiveID string
	Messages []models.Message
	Input    string
	Busy     bool
}

// State is the mutable view state shared by the Synchronizer, the
// Dispatcher and the UI.
type State struct {
	mu      sync.Mutex
	view    View
	changes chan struct{}
}

// NewState returns an empty state: no threads, no active thread.
func NewState() *State {
	return &State{
		view: View{
			Threads:  []models.Thread{},
			Messages: []models.Message{},
		},
		changes: make(chan struct{}, 1),
	}
}

// Snapshot returns a deep copy of the current view.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view
	v.Threads = make([]models.Thread, len(s.view.Threads))
	for i, t := range s.view.Threads {
		v.Threads[i] = t.Clone()
	}
	v.Messages = models.CloneMessages(s.view.Messages)
	return v
}

// Changes fires after one or more mutations. Notifications coalesce, so a
// receiver should read Snapshot rather than count signals.
func (s *State) Changes() <-chan struct{} {
	return s.changes
}

// SetInput records the text currently typed in the input box.
func (s *State) SetInput(text string) {
	s.update(func(v *View) { v.Input = text })
}

// ActiveID returns the active thread id, or "" when none is active.
func (s *State) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.ActiveID
}

// active returns the active thread id and a copy of its visible messages.
func (s *State) active() (string, []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.ActiveID, models.CloneMessages(s.view.Messages)
}

// update applies fn under the lock and notifies listeners.
func (s *State) update(fn func(v *View)) {
	s.mu.Lock()
	fn(&s.view)
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}
