package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaykit/relayq/pkg/queue"
)

// DefaultRedisKey is the key under which the snapshot is stored when no
// key is configured.
const DefaultRedisKey = "relayq:queue_state"

// Redis connection errors
var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis server is not ready")
)

// RedisConfig holds the connection settings for a Redis-backed store.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Connect establishes a Redis connection, retrying per the configuration.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	for i := 0; i < cfg.RetryAttempts; i++ {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}

// RedisStore persists queue state as a single JSON value in Redis. SET
// replaces the value atomically, so a failed save leaves the previous
// snapshot intact.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore creates a Redis-backed store. An empty key falls back to
// DefaultRedisKey.
func NewRedisStore(client redis.Cmdable, key string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}, nil
}

// Key returns the Redis key holding the snapshot.
func (s *RedisStore) Key() string { return s.key }

// Save implements queue.Store
func (s *RedisStore) Save(ctx context.Context, state queue.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode queue state: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store queue state in redis: %w", err)
	}
	return nil
}

// Load implements queue.Store. A missing key yields an empty state.
func (s *RedisStore) Load(ctx context.Context) (queue.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return queue.State{SchemaVersion: queue.SchemaVersion}, nil
	}
	if err != nil {
		return queue.State{}, fmt.Errorf("failed to read queue state from redis: %w", err)
	}

	var state queue.State
	if err := json.Unmarshal(data, &state); err != nil {
		return queue.State{}, fmt.Errorf("failed to decode queue state: %w", err)
	}
	return state, nil
}
