// Package securitylog records security-relevant rejections from the
// ingestion pipeline: bad signatures, replay attempts, rate-limit denials,
// and timestamp validation failures. Unlike webhookevent, a SecurityEvent
// is never tied to a known-good provider row — provider_name is a plain
// string so an event can be logged even for an unrecognized provider name.
package securitylog

import (
	"context"
	"time"
)

// EventType enumerates the reasons a request can be rejected before
// persistence.
type EventType string

const (
	EventInvalidSignature  EventType = "invalid_signature"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventReplayAttempt     EventType = "replay_attempt"
	EventInvalidTimestamp  EventType = "invalid_timestamp"
	EventTimestampTooOld   EventType = "timestamp_too_old"
	EventTimestampInFuture EventType = "timestamp_in_future"
)

// IPAddressMaxLen is the storage limit for Event.IPAddress.
const IPAddressMaxLen = 45 // enough for an IPv6 address

// Event is one security-relevant rejection.
type Event struct {
	ID           string
	ProviderName string
	EventType    EventType
	IPAddress    string
	RequestID    *string
	Details      map[string]any
	CreatedAt    time.Time
}

// Criteria filters Query/Count, for the admin security-log listing and
// analytics.
type Criteria struct {
	ProviderName string
	EventType    EventType
	IPAddress    string
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// Storage is the persistence contract for security events. Store must
// never fail the caller in a way that blocks the ingestion pipeline —
// callers are expected to use an async-batching Storage (see NewAsync)
// wrapping a synchronous one.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
	Count(ctx context.Context, criteria Criteria) (int64, error)
}
