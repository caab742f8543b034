package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"threadchat/internal/models"
	"threadchat/internal/store"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Database is a thread store on SQLite. Every write pushes a fresh snapshot
// to the subscribers of this process.
type Database struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time

	// writeMu keeps snapshots published in write order.
	writeMu sync.Mutex
	subsMu  sync.Mutex
	subs    map[*store.Feed]struct{}
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used for snapshot publishing failures.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Database) { d.logger = l }
}

// WithClock overrides the clock used to stamp new threads.
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

var _ store.Store = (*Database)(nil)

// NewDatabase creates a new database connection and initializes tables
func NewDatabase(dbPath string, opts ...Option) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// a single connection serializes writers and keeps snapshots consistent
	db.SetMaxOpenConns(1)

	database := &Database{
		db:     db,
		logger: zerolog.Nop(),
		now:    time.Now,
		subs:   make(map[*store.Feed]struct{}),
	}
	for _, opt := range opts {
		opt(database)
	}
	if err := database.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return database, nil
}

func (d *Database) createTables() error {
	threadsTable := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		last_message TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		messages TEXT
	);`

	indexTable := `
	CREATE INDEX IF NOT EXISTS idx_threads_timestamp ON threads(timestamp);`

	for _, query := range []string{threadsTable, indexTable} {
		if _, err := d.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// Create inserts an empty thread under a new id.
func (d *Database) Create(ctx context.Context) (string, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	t := store.NewThread(store.NewID(), d.now())
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO threads (id, title, last_message, timestamp, messages)
		VALUES (?, ?, ?, ?, NULL)`,
		t.ID, t.Title, t.LastMessage, models.Millis(t.Timestamp))
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}

	d.broadcast(ctx)
	return t.ID, nil
}

// Update writes the fields carried by u. Title is left alone when empty.
func (d *Database) Update(ctx context.Context, id string, u store.ThreadUpdate) error {
	encoded, err := models.EncodeMessages(u.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	sets := []string{"last_message = ?", "timestamp = ?", "messages = ?"}
	args := []any{u.LastMessage, models.Millis(u.Timestamp), nullable(encoded)}
	if u.Title != "" {
		sets = append(sets, "title = ?")
		args = append(args, u.Title)
	}
	args = append(args, id)

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.db.ExecContext(ctx,
		"UPDATE threads SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update thread %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update thread %s: %w", id, store.ErrNotFound)
	}

	d.broadcast(ctx)
	return nil
}

// Delete removes a thread and all its messages
func (d *Database) Delete(ctx context.Context, id string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := d.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete thread %s: %w", id, err)
	}

	d.broadcast(ctx)
	return nil
}

// Subscribe registers a feed that receives the current collection now and
// after every write. The feed is closed when ctx is done.
func (d *Database) Subscribe(ctx context.Context) (store.Subscription, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	snap, err := d.LoadThreads(ctx)
	if err != nil {
		return nil, err
	}

	var feed *store.Feed
	feed = store.NewFeed(func() {
		d.subsMu.Lock()
		delete(d.subs, feed)
		d.subsMu.Unlock()
	})

	d.subsMu.Lock()
	d.subs[feed] = struct{}{}
	d.subsMu.Unlock()
	feed.Publish(snap)

	go func() {
		select {
		case <-ctx.Done():
			feed.Close()
		case <-feed.Done():
		}
	}()
	return feed, nil
}

// LoadThreads loads all threads ordered by timestamp ascending.
func (d *Database) LoadThreads(ctx context.Context) (store.Snapshot, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, title, last_message, timestamp, messages
		FROM threads
		ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load threads: %w", err)
	}
	defer rows.Close()

	snap := store.Snapshot{}
	for rows.Next() {
		var (
			t        models.Thread
			ts       int64
			messages sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.LastMessage, &ts, &messages); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		t.Timestamp = models.FromMillis(ts)
		t.Messages, err = models.DecodeMessages([]byte(messages.String))
		if err != nil {
			return nil, fmt.Errorf("thread %s: %w", t.ID, err)
		}
		snap = append(snap, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load threads: %w", err)
	}

	return snap, nil
}

// broadcast pushes the current collection to every subscriber. Failures are
// logged; the write that triggered it already succeeded.
func (d *Database) broadcast(ctx context.Context) {
	d.subsMu.Lock()
	feeds := make([]*store.Feed, 0, len(d.subs))
	for f := range d.subs {
		feeds = append(feeds, f)
	}
	d.subsMu.Unlock()
	if len(feeds) == 0 {
		return
	}

	snap, err := d.LoadThreads(context.WithoutCancel(ctx))
	if err != nil {
		d.logger.Error().Err(err).Msg("publish snapshot")
		return
	}
	for _, f := range feeds {
		f.Publish(snap)
	}
}

// Close closes the database connection
func (d *Database) Close() error {
	d.subsMu.Lock()
	feeds := make([]*store.Feed, 0, len(d.subs))
	for f := range d.subs {
		feeds = append(feeds, f)
	}
	d.subsMu.Unlock()
	for _, f := range feeds {
		f.Close()
	}
	return d.db.Close()
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
