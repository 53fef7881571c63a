package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript atomically admits a slot only while the counter is
// below quota, so concurrent dispatcher processes cannot over-admit.
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return 0
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisStore is a WindowStore backed by a shared Redis instance,
// coordinating channel quotas across multiple dispatcher processes.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed window store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Reserve(ctx context.Context, key string, quota int64, ttl time.Duration) (bool, error) {
	res, err := reserveScript.Run(ctx, s.client, []string{key}, quota, (2 * ttl).Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to reserve rate limit slot: %w", err)
	}
	return res == 1, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, 2*ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment window counter: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read window counter: %w", err)
	}
	return count, nil
}
