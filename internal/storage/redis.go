package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"threadchat/internal/config"
	"threadchat/internal/models"
	"threadchat/internal/store"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore keeps each thread in a hash, indexes ids by timestamp in a
// sorted set and announces every write on a pub/sub channel so that
// subscribers in any process reload the collection.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	indexKey string
	channel  string
}

var _ store.Store = (*RedisStore)(nil)

// DialRedis creates the redis client from config and checks it answers.
func DialRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client. The caller keeps ownership of it.
func NewRedisStore(client *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client:   client,
		logger:   logger,
		now:      time.Now,
		indexKey: store.Collection,
		channel:  store.Collection + ":changed",
	}
}

func (r *RedisStore) docKey(id string) string {
	return store.Collection + ":" + id
}

// Create writes an empty thread hash and indexes it.
func (r *RedisStore) Create(ctx context.Context) (string, error) {
	t := store.NewThread(store.NewID(), r.now())
	key := r.docKey(t.ID)
	ts := models.Millis(t.Timestamp)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "title", t.Title, "lastMessage", t.LastMessage, "timestamp", ts)
		pipe.ZAdd(ctx, r.indexKey, redis.Z{Score: float64(ts), Member: t.ID})
		pipe.Publish(ctx, r.channel, t.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return t.ID, nil
}

// updateThread applies an update atomically. It refuses to recreate a thread
// that has been deleted and otherwise overwrites unconditionally, so the
// last writer wins.
//
// KEYS: thread hash, index. ARGV: lastMessage, timestamp, title, messages,
// id, channel.
var updateThread = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "lastMessage", ARGV[1], "timestamp", ARGV[2])
if ARGV[3] ~= "" then
	redis.call("HSET", KEYS[1], "title", ARGV[3])
end
if ARGV[4] ~= "" then
	redis.call("HSET", KEYS[1], "messages", ARGV[4])
else
	redis.call("HDEL", KEYS[1], "messages")
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[5])
redis.call("PUBLISH", ARGV[6], ARGV[5])
return 1`)

// Update writes the fields carried by u to an existing thread.
func (r *RedisStore) Update(ctx context.Context, id string, u store.ThreadUpdate) error {
	encoded, err := models.EncodeMessages(u.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	ts := models.Millis(u.Timestamp)

	n, err := updateThread.Run(ctx, r.client,
		[]string{r.docKey(id), r.indexKey},
		u.LastMessage, ts, u.Title, string(encoded), id, r.channel,
	).Int64()
	if err != nil {
		return fmt.Errorf("update thread %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update thread %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Delete drops the thread hash and its index entry.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.docKey(id))
		pipe.ZRem(ctx, r.indexKey, id)
		pipe.Publish(ctx, r.channel, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete thread %s: %w", id, err)
	}
	return nil
}

// Subscribe listens on the change channel and reloads the collection after
// every notification. The listener stops when ctx is done or the
// subscription is closed.
func (r *RedisStore) Subscribe(ctx context.Context) (store.Subscription, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	snap, err := r.LoadThreads(ctx)
	if err != nil {
		ps.Close()
		return nil, err
	}

	feed := store.NewFeed(func() { ps.Close() })
	feed.Publish(snap)

	go func() {
		defer feed.Close()
		events := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-feed.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				snap, err := r.LoadThreads(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.Error().Err(err).Msg("reload threads")
					}
					continue
				}
				feed.Publish(snap)
			}
		}
	}()
	return feed, nil
}

// LoadThreads reads every indexed thread ordered by timestamp ascending.
// Ids whose hash has gone missing are skipped.
func (r *RedisStore) LoadThreads(ctx context.Context) (store.Snapshot, error) {
	ids, err := r.client.ZRange(ctx, r.indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load thread index: %w", err)
	}
	if len(ids) == 0 {
		return store.Snapshot{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.docKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load threads: %w", err)
	}

	snap := make(store.Snapshot, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		t, err := threadFromHash(id, fields)
		if err != nil {
			return nil, err
		}
		snap = append(snap, t)
	}
	return snap, nil
}

func threadFromHash(id string, fields map[string]string) (models.Thread, error) {
	t := models.Thread{
		ID:          id,
		Title:       fields["title"],
		LastMessage: fields["lastMessage"],
	}
	if raw := fields["timestamp"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.Thread{}, fmt.Errorf("thread %s timestamp: %w", id, err)
		}
		t.Timestamp = models.FromMillis(ms)
	}
	msgs, err := models.DecodeMessages([]byte(fields["messages"]))
	if err != nil {
		return models.Thread{}, fmt.Errorf("thread %s: %w", id, err)
	}
	t.Messages = msgs
	return t, nil
}
