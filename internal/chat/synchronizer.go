package chat

import (
	"context"
	"fmt"

	"threadchat/internal/models"
	"threadchat/internal/store"

	"github.com/rs/zerolog"
)

// Synchronizer maintains a read-only projection of every remote thread,
// newest first, and the message list of the active thread.
type Synchronizer struct {
	store  store.Store
	state  *State
	logger zerolog.Logger

	// seen holds the ids of the last projection. Only touched under the
	// state lock.
	seen map[string]struct{}
}

// NewSynchronizer creates a synchronizer writing into state.
func NewSynchronizer(s store.Store, state *State, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:  s,
		state:  state,
		logger: logger.With().Str("component", "synchronizer").Logger(),
		seen:   map[string]struct{}{},
	}
}

// Run holds one store subscription until ctx is done or the store ends the
// stream. The subscription is always released before Run returns.
func (s *Synchronizer) Run(ctx context.Context) error {
	sub, err := s.store.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to threads: %w", err)
	}
	defer sub.Close()

	s.logger.Debug().Msg("subscribed")
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.Snapshots():
			if !ok {
				s.logger.Debug().Msg("subscription ended")
				return nil
			}
			s.apply(snap)
		}
	}
}

// apply replaces the projection with snap reordered newest first.
func (s *Synchronizer) apply(snap store.Snapshot) {
	threads := make([]models.Thread, len(snap))
	ids := make(map[string]struct{}, len(snap))
	for i, t := range snap {
		threads[i] = t.Clone()
		ids[t.ID] = struct{}{}
	}
	models.SortNewestFirst(threads)

	s.state.update(func(v *View) {
		v.Threads = threads
		if v.ActiveID != "" {
			if t, ok := models.Find(threads, v.ActiveID); ok {
				v.Messages = models.CloneMessages(t.Messages)
			} else if _, wasSeen := s.seen[v.ActiveID]; wasSeen {
				s.logger.Info().Str("thread_id", v.ActiveID).Msg("active thread removed remotely")
				v.ActiveID = ""
				v.Messages = []models.Message{}
			}
		}
		s.seen = ids
	})
}

// Select makes id the active thread. Its messages come from the last
// projection; an id not in the projection shows an empty list.
func (s *Synchronizer) Select(id string) {
	s.state.update(func(v *View) {
		v.ActiveID = id
		if t, ok := models.Find(v.Threads, id); ok {
			v.Messages = models.CloneMessages(t.Messages)
		} else {
			v.Messages = []models.Message{}
		}
	})
}

// Threads returns a copy of the current projection, newest first.
func (s *Synchronizer) Threads() []models.Thread {
	return s.state.Snapshot().Threads
}
