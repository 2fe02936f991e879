package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript performs INCR-then-conditionally-set-TTL in a single
// round trip: the TTL is only applied the first time a key is created in
// a window, so later increments within the same window never extend it.
// If the increment pushes the counter past capacity, it is immediately
// backed out with DECR before returning, so a rejected call never leaves
// the counter incremented (spec.md §4.3: "on allowed=false, do not
// increment the counter") — the increment, the capacity comparison, and
// the back-out all happen inside the one scripted round trip, so no
// concurrent caller can observe or act on the over-capacity value. This
// is the "scripted or transactional KV operation" the fixed-window
// contract requires for atomicity under concurrent callers.
const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if count > tonumber(ARGV[2]) then
	redis.call("DECR", KEYS[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

// RedisStore is a Store backed by a Redis Lua script.
type RedisStore struct {
	client redis.UniversalClient
	script *redis.Script
}

// NewRedisStore builds a Store backed by client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, script: redis.NewScript(incrementScript)}
}

func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, window time.Duration, capacity int64) (int64, time.Duration, error) {
	res, err := s.script.Run(ctx, s.client, []string{key}, window.Milliseconds(), capacity).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimiter: increment script: %w", err)
	}

	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("ratelimiter: unexpected script result %T", res)
	}

	count, ok := vals[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("ratelimiter: unexpected count type %T", vals[0])
	}
	ttlMs, ok := vals[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("ratelimiter: unexpected ttl type %T", vals[1])
	}

	return count, time.Duration(ttlMs) * time.Millisecond, nil
}
