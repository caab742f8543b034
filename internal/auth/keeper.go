package auth

import (
	"sync"
	"time"
)

// Keeper holds the signed-in session and drops it once it expires.
type Keeper struct {
	mu      sync.Mutex
	session *Session
	timer   *time.Timer
	gen     uint64
	expired chan struct{}
	now     func() time.Time
}

// NewKeeper creates a keeper with no session.
func NewKeeper() *Keeper {
	return &Keeper{
		expired: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Start replaces the current session with s and arms the sign-out timer for
// s.ExpiresAt. A session that has already expired is dropped at once.
func (k *Keeper) Start(s *Session) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()

	k.session = s
	wait := s.ExpiresAt.Sub(k.now())
	if wait < 0 {
		wait = 0
	}
	k.gen++
	gen := k.gen
	k.timer = time.AfterFunc(wait, func() { k.expire(gen) })
}

// Session returns the live session, or nil when signed out.
func (k *Keeper) Session() *Session {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.session
}

// Expired receives once each time a session times out.
func (k *Keeper) Expired() <-chan struct{} {
	return k.expired
}

// SignOut drops the session without signalling Expired.
func (k *Keeper) SignOut() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()
	k.session = nil
}

// Stop releases the timer. The session, if any, is kept.
func (k *Keeper) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()
}

func (k *Keeper) expire(gen uint64) {
	k.mu.Lock()
	// a newer Start or a SignOut owns the keeper now
	if k.gen != gen || k.timer == nil {
		k.mu.Unlock()
		return
	}
	k.timer = nil
	k.session = nil
	k.mu.Unlock()

	select {
	case k.expired <- struct{}{}:
	default:
	}
}

func (k *Keeper) stopLocked() {
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	k.gen++
}
