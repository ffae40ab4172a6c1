// Package queue adapts Redis to the coordination-store interfaces: a list of
// job ids, a hash per job, result strings, status hashes and a pub/sub channel
// for completion events.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dontdude/gograde/internal/domain"
)

// Config holds connection settings and key names.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	Queue    string
	Events   string
}

// RedisStore implements the worker and submitter sides of the store.
type RedisStore struct {
	client *redis.Client
	queue  string
	events string
}

// Ensure RedisStore satisfies the interfaces
var (
	_ domain.JobSource  = (*RedisStore)(nil)
	_ domain.ResultSink = (*RedisStore)(nil)
	_ domain.JobBoard   = (*RedisStore)(nil)
)

// NewRedisStore connects and pings with a short deadline so a bad address
// fails at startup.
func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(rdb, cfg.Queue, cfg.Events), nil
}

func NewRedisStoreWithClient(client *redis.Client, queue, events string) *RedisStore {
	return &RedisStore{client: client, queue: queue, events: events}
}

// Pop removes one job id from the tail of the queue, blocking up to block.
// A block of zero would wait forever, so callers always pass a finite value.
func (r *RedisStore) Pop(ctx context.Context, block time.Duration) (string, error) {
	res, err := r.client.BRPop(ctx, block, r.queue).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrQueueEmpty
	}
	if err != nil {
		return "", fmt.Errorf("redis pop failed: %w", err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("redis pop: unexpected reply %v", res)
	}
	return res[1], nil
}

func (r *RedisStore) ReadFields(ctx context.Context, jobID string, fields ...string) (map[string]string, error) {
	vals, err := r.client.HMGet(ctx, jobID, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read failed: %w", err)
	}
	out := make(map[string]string, len(fields))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[fields[i]] = s
		}
	}
	return out, nil
}

func (r *RedisStore) PutResult(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, payload, ttl).Err()
}

// MarkStatus sets one hash field and refreshes the hash expiry atomically.
func (r *RedisStore) MarkStatus(ctx context.Context, key, field, value string, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, value)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// Broadcast publishes a completion event on the events channel.
func (r *RedisStore) Broadcast(ctx context.Context, event domain.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, r.events, data).Err()
}

// Submit writes the job hash and pushes copies queue entries in one transaction.
func (r *RedisStore) Submit(ctx context.Context, jobID string, fields map[string]string, copies int, ttl time.Duration) error {
	values := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobID, values...)
		if ttl > 0 {
			pipe.Expire(ctx, jobID, ttl)
		}
		for range copies {
			pipe.LPush(ctx, r.queue, jobID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis submit failed: %w", err)
	}
	return nil
}

// Partitions lists the worker identities that hold test cases for the job.
func (r *RedisStore) Partitions(ctx context.Context, jobID string) ([]string, error) {
	keys, err := r.client.HKeys(ctx, jobID).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, domain.ErrJobNotFound
	}
	out := keys[:0]
	for _, k := range keys {
		if k != domain.FieldCode && k != domain.FieldLanguage {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *RedisStore) Status(ctx context.Context, jobID string) (map[string]string, error) {
	return r.client.HGetAll(ctx, domain.StatusKey(jobID)).Result()
}

func (r *RedisStore) Result(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

// SubscribeEvents streams completion events until ctx is done.
func (r *RedisStore) SubscribeEvents(ctx context.Context) (<-chan domain.JobEvent, error) {
	pubsub := r.client.Subscribe(ctx, r.events)

	// Wait for confirmation that we are subscribed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	outCh := make(chan domain.JobEvent)

	go func() {
		defer close(outCh)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.JobEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					slog.Error("Failed to unmarshal event", "err", err)
					continue
				}
				select {
				case outCh <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return outCh, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
