// Package ingestion implements the per-request ingestion pipeline (C7):
// the state machine that authenticates, defends, persists, and
// acknowledges an inbound webhook POST before handing it off to the
// detached forwarder.
package ingestion

import "net/http"

// Reason is the closed set of rejection kinds the pipeline can produce,
// per spec.md §7's error table. Modeling rejections as a discriminated
// union at the pipeline boundary keeps the HTTP translation in one place
// instead of scattering ad-hoc status codes through the state machine.
type Reason string

const (
	ReasonMissingHeader    Reason = "missing_header"
	ReasonProviderNotFound Reason = "provider_not_found"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonInvalidTimestamp Reason = "invalid_timestamp"
	ReasonTimestampTooOld  Reason = "timestamp_too_old"
	ReasonTimestampFuture  Reason = "timestamp_in_future"
	ReasonReplay           Reason = "replay_attempt"
	ReasonMalformedJSON    Reason = "malformed_json"
	ReasonStoreFailure     Reason = "store_failure"
)

// status maps each Reason to the HTTP status spec.md §7 assigns it.
var status = map[Reason]int{
	ReasonMissingHeader:    http.StatusBadRequest,
	ReasonProviderNotFound: http.StatusNotFound,
	ReasonRateLimited:      http.StatusTooManyRequests,
	ReasonInvalidSignature: http.StatusUnauthorized,
	ReasonInvalidTimestamp: http.StatusBadRequest,
	ReasonTimestampTooOld:  http.StatusBadRequest,
	ReasonTimestampFuture:  http.StatusBadRequest,
	ReasonReplay:           http.StatusConflict,
	ReasonMalformedJSON:    http.StatusBadRequest,
	ReasonStoreFailure:     http.StatusInternalServerError,
}

// securityEventReasons is the subset of Reason that §7 says must also
// produce a SecurityEvent.
var securityEventReasons = map[Reason]bool{
	ReasonRateLimited:      true,
	ReasonInvalidSignature: true,
	ReasonInvalidTimestamp: true,
	ReasonTimestampTooOld:  true,
	ReasonTimestampFuture:  true,
	ReasonReplay:           true,
}

// Rejection is a terminal, non-2xx outcome of Ingest.
type Rejection struct {
	Reason Reason
	Detail string
	Cause  error
}

func (r *Rejection) Error() string {
	if r.Cause != nil {
		return r.Detail + ": " + r.Cause.Error()
	}
	return r.Detail
}

func (r *Rejection) Unwrap() error { return r.Cause }

// Status returns the HTTP status code for r.
func (r *Rejection) Status() int {
	if s, ok := status[r.Reason]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// LogsSecurityEvent reports whether r must be recorded as a SecurityEvent.
func (r *Rejection) LogsSecurityEvent() bool {
	return securityEventReasons[r.Reason]
}

func reject(reason Reason, detail string, cause error) *Rejection {
	return &Rejection{Reason: reason, Detail: detail, Cause: cause}
}
