// Package ratelimiter implements the per-provider fixed-window counter
// that protects the ingestion pipeline from floods (C3).
package ratelimiter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of an Admit call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter admits or rejects a request for a provider under a fixed-window
// counter. On allowed=false, the counter is not incremented further than
// the window's capacity.
type Limiter interface {
	Admit(ctx context.Context, providerID uuid.UUID) (Result, error)
}

// Store performs the atomic increment-and-test that backs a fixed window:
// the first increment within a window also sets the window's TTL;
// subsequent increments within the same window must not extend it. A call
// that would push the counter past capacity does not leave the counter
// incremented — per spec.md §4.3, "on allowed=false, do not increment the
// counter" — so the whole check-and-adjust happens atomically in one
// round trip rather than as a separate read-then-write.
type Store interface {
	// IncrementAndGet atomically increments the counter for key, backing
	// out the increment if doing so would exceed capacity, and returns
	// the incremented count (above capacity when the increment was backed
	// out) together with the TTL remaining on the window. window is only applied if this call starts a new window
	// (the key had no existing TTL).
	IncrementAndGet(ctx context.Context, key string, window time.Duration, capacity int64) (count int64, ttl time.Duration, err error)
}

// FixedWindowLimiter implements Limiter over a Store with a fixed
// capacity N per window duration W, keyed per provider.
type FixedWindowLimiter struct {
	store    Store
	capacity int
	window   time.Duration
	prefix   string
}

// New builds a FixedWindowLimiter. capacity and window correspond to
// RATE_LIMIT_MAX_REQUESTS and RATE_LIMIT_WINDOW_SECONDS.
func New(store Store, capacity int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{store: store, capacity: capacity, window: window, prefix: "rate_limit:"}
}

func (l *FixedWindowLimiter) Admit(ctx context.Context, providerID uuid.UUID) (Result, error) {
	key := l.prefix + providerID.String()

	count, ttl, err := l.store.IncrementAndGet(ctx, key, l.window, int64(l.capacity))
	if err != nil {
		return Result{}, err
	}

	remaining := l.capacity - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   int(count) <= l.capacity,
		Remaining: remaining,
		ResetIn:   ttl,
	}, nil
}
