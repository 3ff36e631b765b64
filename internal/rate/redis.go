package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var incrementLua = redis.NewScript(incrementScript)

// RedisStore keeps counters in Redis. Increment and first-hit expiry run in
// one script so concurrent attempts cannot leave a key without TTL.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore returns a Redis counter store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrementLua.Run(ctx, s.redis, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.redis.PExpire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
