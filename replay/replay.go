// Package replay implements idempotency/replay protection for inbound
// webhook requests: the first request carrying a given (provider,
// request ID) pair wins, every later one with the same pair is rejected.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAlreadyClaimed is returned by Claim when the (provider, request ID)
// pair has already been seen — the ingestion pipeline maps this to a 409.
var ErrAlreadyClaimed = errors.New("replay: request id already claimed")

// Store claims a (provider, request ID) pair exactly once within a TTL
// window.
//
// Fail-closed: any backend error is returned as-is rather than treated as
// "not yet claimed". A Redis outage must not let duplicate deliveries
// through — the opposite tradeoff from the rate limiter, which fails open.
type Store interface {
	// Claim atomically records requestID as seen for providerName. It
	// returns ErrAlreadyClaimed if another call already claimed the same
	// pair within ttl; any other error is a backend failure and must be
	// treated as a rejection, not as "fresh".
	Claim(ctx context.Context, providerName, requestID string, ttl time.Duration) error
}

// RedisStore claims pairs using a single atomic SET key value NX EX
// command: the command itself is the compare-and-set, so no separate
// existence check or Lua script is needed.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore builds a replay Store backed by client. Keys are namespaced
// under prefix (e.g. "replay:") to keep the keyspace legible alongside the
// rate limiter's own keys.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "replay:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(providerName, requestID string) string {
	return s.prefix + providerName + ":" + requestID
}

func (s *RedisStore) Claim(ctx context.Context, providerName, requestID string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.key(providerName, requestID), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("replay: setnx: %w", err)
	}
	if !ok {
		return ErrAlreadyClaimed
	}
	return nil
}
