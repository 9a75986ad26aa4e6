package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contactbook/apiserver/config"
)

// incrScript increments the counter and stamps the window expiry on the
// first hit, all server-side, so concurrent checks on the same key cannot
// race between the increment and the expiry.
const incrScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

// RedisStore is a Store backed by a shared Redis instance.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisStore constructs a RedisStore and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(incrScript),
	}, nil
}

// Incr atomically increments the window counter for key.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	values, err := s.script.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	count := values[0]
	ttl := window
	if len(values) > 1 && values[1] > 0 {
		ttl = time.Duration(values[1]) * time.Millisecond
	}
	return count, ttl, nil
}

// Reset removes the counter for key. Deleting a missing key is a no-op.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
