package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix prefixes every RedisStore key.
const DefaultRedisKeyPrefix = "ratelimit:"

// fixedWindowScript counts one request in a window hash.
// The hash is created with count 1 and a TTL that ends with the window.
// An existing hash is incremented only while count < limit.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local count = tonumber(redis.call('HGET', key, 'count'))
if count == nil then
    redis.call('HSET', key, 'count', 1, 'limit', limit)
    redis.call('PEXPIRE', key, ttl)
    return 1
end

if count < limit then
    redis.call('HINCRBY', key, 'count', 1)
    return 1
end

return 0
`)

// RedisStore is a Store backed by Redis.
//
// Each (key, window) is a hash whose TTL ends with the window, so Redis
// evicts elapsed windows and Sweep has nothing to do.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides DefaultRedisKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisNow overrides the clock.
func WithRedisNow(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

// NewRedisStore creates a RedisStore.
//
// Example:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	store := ratelimit.NewRedisStore(rdb)
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Probe implements Store.
func (s *RedisStore) Probe(ctx context.Context, key string, window time.Duration) (QuotaInfo, error) {
	now := s.now()
	start := WindowStart(now, window)

	vals, err := s.client.HMGet(ctx, s.key(key, window, start), "count", "limit").Result()
	if err != nil {
		return QuotaInfo{}, fmt.Errorf("ratelimit: probe %q: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return emptyInfo(now, window), nil
	}

	count, err := toInt(vals[0])
	if err != nil {
		return QuotaInfo{}, fmt.Errorf("ratelimit: probe %q: %w", key, err)
	}
	limit, err := toInt(vals[1])
	if err != nil {
		return QuotaInfo{}, fmt.Errorf("ratelimit: probe %q: %w", key, err)
	}

	return QuotaInfo{
		RequestCount:  count,
		WindowStart:   start,
		LimitExceeded: count >= limit,
	}, nil
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	now := s.now()
	start := WindowStart(now, window)
	ttl := WindowEnd(start, window).Sub(now).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	admitted, err := fixedWindowScript.Run(ctx, s.client, []string{s.key(key, window, start)}, limit, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: increment %q: %w", key, err)
	}
	return admitted == 1, nil
}

// Sweep implements Store. Keys expire on their own.
func (s *RedisStore) Sweep(context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// key scopes the counter by window length as well as start, so limiters
// with different windows never share a counter.
func (s *RedisStore) key(key string, window time.Duration, start time.Time) string {
	return s.prefix + key + ":" + strconv.FormatInt(int64(window/time.Second), 10) + ":" +
		strconv.FormatInt(start.Unix(), 10)
}

func toInt(v any) (int, error) {
	str, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected redis value type")
	}
	return strconv.Atoi(str)
}
