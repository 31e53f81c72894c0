// Package queue moves event-processing work off the engine's hot path. The
// ingress publishes AsyncEventTask records to a Redis list; workers pop and
// execute them, so a slow model call never blocks event append.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ravenwood/storyteller/pkg/storyteller"
	"github.com/ravenwood/storyteller/pkg/types"
)

const (
	defaultKey        = "storyteller:events"
	defaultPopTimeout = 5 * time.Second
)

// Config configures the Redis-backed task queue.
type Config struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	Key        string        `yaml:"key"`
	PopTimeout time.Duration `yaml:"pop_timeout"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.Key == "" {
		c.Key = defaultKey
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = defaultPopTimeout
	}
}

// RedisQueue is a FIFO task queue on one Redis list.
type RedisQueue struct {
	rdb        *redis.Client
	key        string
	popTimeout time.Duration
}

var _ storyteller.TaskQueue = (*RedisQueue)(nil)

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, cfg Config) (*RedisQueue, error) {
	cfg.SetDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisQueue{
		rdb:        rdb,
		key:        cfg.Key,
		popTimeout: cfg.PopTimeout,
	}, nil
}

// Publish appends one task to the queue.
func (q *RedisQueue) Publish(ctx context.Context, task types.AsyncEventTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal event task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue event task: %w", err)
	}
	return nil
}

// Next blocks until a task is available or the pop timeout elapses. A nil
// task with a nil error means the timeout fired and the caller should poll
// again.
func (q *RedisQueue) Next(ctx context.Context) (*types.AsyncEventTask, error) {
	res, err := q.rdb.BRPop(ctx, q.popTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue event task: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}

	var task types.AsyncEventTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("decode event task: %w", err)
	}
	return &task, nil
}

// Len returns the number of queued tasks.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}
