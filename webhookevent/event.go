// Package webhookevent models the per-request audit record written for
// every webhook that passes all of C7's checks, and the forwarding outcome
// later attached to it by the forwarder and retry dispatcher.
package webhookevent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ResponseBodyMaxBytes is the truncation length applied to the forwarding
// destination's response body before persisting it.
const ResponseBodyMaxBytes = 1024

// ErrorMessageMaxBytes is the truncation length applied to a forwarding
// failure's error message before persisting it.
const ErrorMessageMaxBytes = 100

// Event is the audit record for one inbound webhook request.
//
// SignatureValid is always true at the time a row is written — a request
// that fails signature verification is rejected before persistence (see the
// ingestion pipeline) and never gets an Event of its own, only a
// SecurityEvent. The column still exists because, unlike the column, the
// invariant is an implementation choice and not guaranteed to remain true
// forever.
type Event struct {
	ID             uuid.UUID
	ProviderID     uuid.UUID
	RequestID      string
	Payload        []byte // raw, parsed-and-valid JSON document
	Headers        map[string]string
	SignatureValid bool
	Forwarded      bool
	ResponseStatus *int
	ResponseBody   *string
	ErrorMessage   *string
	ReceivedAt     time.Time
	ForwardedAt    *time.Time
}

// ForwardingOutcome is the set of fields the forwarder and retry dispatcher
// update once a forwarding attempt concludes; it is always applied as a
// single idempotent, last-writer-wins update.
type ForwardingOutcome struct {
	Forwarded      bool
	ResponseStatus *int
	ResponseBody   *string
	ErrorMessage   *string
	ForwardedAt    time.Time
}

var (
	// ErrDuplicateRequestID is returned by Insert when request_id already
	// exists — the signal the ingestion pipeline maps to HTTP 409.
	ErrDuplicateRequestID = errors.New("webhookevent: request id already recorded")
	ErrNotFound           = errors.New("webhookevent: not found")
)

// Filter narrows List/Count to a provider and/or time range, for the admin
// listing and analytics endpoints.
type Filter struct {
	ProviderID *uuid.UUID
	Since      *time.Time
	Until      *time.Time
	Forwarded  *bool
	Limit      int
	Offset     int
}

// Store is the persistence contract for webhook events.
type Store interface {
	// Insert persists a new event. Returns ErrDuplicateRequestID if
	// RequestID collides with an existing row for any provider.
	Insert(ctx context.Context, e *Event) error

	// UpdateForwardingStatus idempotently applies a forwarding outcome.
	UpdateForwardingStatus(ctx context.Context, id uuid.UUID, outcome ForwardingOutcome) error

	// ClearForwardingStatus resets forwarded/response_status/response_body/
	// error_message/forwarded_at to their initial (unforwarded) state, for
	// the retry dispatcher (C9) to call before re-enqueuing a delivery.
	ClearForwardingStatus(ctx context.Context, id uuid.UUID) error

	Get(ctx context.Context, id uuid.UUID) (*Event, error)
	List(ctx context.Context, f Filter) ([]*Event, error)
	Count(ctx context.Context, f Filter) (int64, error)
}

// TruncateResponseBody truncates s to ResponseBodyMaxBytes, byte-wise.
func TruncateResponseBody(s string) string {
	if len(s) <= ResponseBodyMaxBytes {
		return s
	}
	return s[:ResponseBodyMaxBytes]
}

// TruncateErrorMessage truncates s to ErrorMessageMaxBytes, byte-wise.
func TruncateErrorMessage(s string) string {
	if len(s) <= ErrorMessageMaxBytes {
		return s
	}
	return s[:ErrorMessageMaxBytes]
}
