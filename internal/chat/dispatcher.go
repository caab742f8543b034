package chat

import (
	"context"
	"strings"
	"time"

	"threadchat/internal/logging"
	"threadchat/internal/models"
	"threadchat/internal/store"

	"github.com/rs/zerolog"
)

// ErrorReply stands in for the assistant's answer when the completion
// endpoint fails.
const ErrorReply = "Sorry, I encountered an error. Please try again."

// DefaultTitleCap is the title length used when no cap is configured.
const DefaultTitleCap = 30

// Completer returns the reply to a single message.
type Completer interface {
	Complete(ctx context.Context, message string) (string, error)
}

// Dispatcher runs the send and clear workflows against the store and the
// completion endpoint, mirroring every step into the shared State.
type Dispatcher struct {
	store     store.Store
	completer Completer
	state     *State
	logger    zerolog.Logger
	titleCap  int
	now       func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTitleCap sets how many characters of the first message become the
// thread title.
func WithTitleCap(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.titleCap = n
		}
	}
}

// WithClock overrides the clock used to stamp messages.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(s store.Store, c Completer, state *State, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:     s,
		completer: c,
		state:     state,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		titleCap:  DefaultTitleCap,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send posts text to the active thread, creating a thread first when none is
// active, and appends the assistant's reply. Blank text is ignored.
//
// Store failures are logged and leave the optimistic local state in place.
// A completion failure is replaced by ErrorReply. Overlapping sends are not
// serialized: whichever persists last wins at the store. Cancelling ctx does
// not abort a send once it has started; the completer's own timeout bounds it.
func (d *Dispatcher) Send(ctx context.Context, text string) {
	content := strings.TrimSpace(text)
	if content == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)

	id, prior := d.state.active()
	created := false
	if id == "" {
		newID, err := d.store.Create(ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("create thread")
			return
		}
		id, prior, created = newID, []models.Message{}, true
		d.adopt(id)
	}
	log := d.logger.With().Str("thread_id", id).Logger()

	updated := append(prior, models.Message{Role: models.RoleUser, Content: content, Time: d.now()})
	d.show(id, updated)

	d.state.update(func(v *View) {
		v.Input = ""
		v.Busy = true
	})
	defer d.state.update(func(v *View) { v.Busy = false })

	title := ""
	if len(prior) == 0 {
		title = models.Title(content, d.titleCap)
	}
	if err := d.persist(ctx, id, updated, title); err != nil {
		log.Error().Err(err).Msg("persist user message")
		if created {
			// TODO: delete threads whose first write never landed instead of
			// leaving them empty in the store.
			log.Warn().Msg("orphan candidate: thread created but first write failed")
		}
	}

	log.Debug().Str("message", logging.Preview(content, 50)).Msg("requesting completion")
	reply, err := d.completer.Complete(ctx, content)
	if err != nil {
		log.Warn().Err(err).Msg("completion failed")
		reply = ErrorReply
	}

	final := append(models.CloneMessages(updated), models.Message{Role: models.RoleAssistant, Content: reply, Time: d.now()})
	d.show(id, final)
	if err := d.persist(ctx, id, final, ""); err != nil {
		log.Error().Err(err).Msg("persist reply")
	}
}

// NewThread creates an empty thread and makes it active.
func (d *Dispatcher) NewThread(ctx context.Context) error {
	id, err := d.store.Create(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("create thread")
		return err
	}
	d.adopt(id)
	return nil
}

// Clear deletes the active thread's whole remote record and resets the local
// state. It does nothing unless the active thread has messages. Callers
// confirm with the user first; the delete cannot be undone.
func (d *Dispatcher) Clear(ctx context.Context) {
	id, messages := d.state.active()
	if id == "" || len(messages) == 0 {
		return
	}

	if err := d.store.Delete(ctx, id); err != nil {
		d.logger.Error().Err(err).Str("thread_id", id).Msg("delete thread")
		return
	}

	d.state.update(func(v *View) {
		v.ActiveID = ""
		v.Messages = []models.Message{}
		v.Input = ""
	})
}

func (d *Dispatcher) adopt(id string) {
	d.state.update(func(v *View) {
		v.ActiveID = id
		v.Messages = []models.Message{}
		v.Input = ""
	})
}

// show replaces the visible messages while id is still the active thread.
func (d *Dispatcher) show(id string, messages []models.Message) {
	visible := models.CloneMessages(messages)
	d.state.update(func(v *View) {
		if v.ActiveID == id {
			v.Messages = visible
		}
	})
}

func (d *Dispatcher) persist(ctx context.Context, id string, messages []models.Message, title string) error {
	last, ts := models.Summarize(messages, d.now())
	return d.store.Update(ctx, id, store.ThreadUpdate{
		Title:       title,
		LastMessage: last,
		Timestamp:   ts,
		Messages:    messages,
	})
}
