package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const minRecordTTL = time.Second

const casStatusScript = `
local current = redis.call("HGET", KEYS[1], "status")
if not current then
  return -1
end
if current ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "status", ARGV[2])
return 1
`

var casStatusLua = redis.NewScript(casStatusScript)

const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local status = redis.call("HGET", key, "status")
  if not status then
    redis.call("SREM", KEYS[1], id)
  elseif status == "ACTIVE" then
    redis.call("HSET", key, "status", "REVOKED")
    revoked = revoked + 1
  end
end
return revoked
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// RedisStore is the Redis implementation of [Store].
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store that namespaces its keys with prefix. now is
// used to derive key TTLs from record expiry; nil means time.Now.
func NewRedisStore(client redis.UniversalClient, prefix string, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		now:    now,
	}
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + "rt:" + id
}

func (s *RedisStore) hashKey(tokenHash string) string {
	return s.prefix + "rth:" + tokenHash
}

func (s *RedisStore) accountKey(accountID string) string {
	return s.prefix + "rta:" + accountID
}

// Create persists rec and its lookup indexes in one transaction.
func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	fields, err := Encode(rec)
	if err != nil {
		return err
	}

	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}

	recordKey := s.recordKey(rec.ID)
	accountKey := s.accountKey(rec.AccountID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey, fields)
		pipe.PExpire(ctx, recordKey, ttl)
		pipe.Set(ctx, s.hashKey(rec.TokenHash), rec.ID, ttl)
		pipe.SAdd(ctx, accountKey, rec.ID)
		pipe.PExpire(ctx, accountKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// FindByHash resolves a token digest to its record.
func (s *RedisStore) FindByHash(ctx context.Context, tokenHash string) (*Record, error) {
	id, err := s.redis.Get(ctx, s.hashKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return s.Get(ctx, id)
}

// Get loads a record by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}

	return Decode(fields)
}

// CompareAndSetStatus performs the status transition atomically in a Lua script.
func (s *RedisStore) CompareAndSetStatus(ctx context.Context, id string, expected, next Status) (bool, error) {
	if !expected.Valid() || !next.Valid() {
		return false, fmt.Errorf("invalid status transition %q -> %q", expected, next)
	}

	res, err := casStatusLua.Run(ctx, s.redis, []string{s.recordKey(id)}, string(expected), string(next)).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch res {
	case -1:
		return false, ErrRecordNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// RevokeAllForAccount revokes every ACTIVE record of accountID in one script
// and prunes index entries whose record has expired.
func (s *RedisStore) RevokeAllForAccount(ctx context.Context, accountID string) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis, []string{s.accountKey(accountID)}, s.prefix+"rt:").Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// ListByAccount returns every live record of accountID, in no particular order.
func (s *RedisStore) ListByAccount(ctx context.Context, accountID string) ([]*Record, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// CountActive returns how many live ACTIVE records accountID has.
func (s *RedisStore) CountActive(ctx context.Context, accountID string) (int, error) {
	records, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	active := 0
	for _, rec := range records {
		if rec.Status == StatusActive && !rec.Expired(now) {
			active++
		}
	}
	return active, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
