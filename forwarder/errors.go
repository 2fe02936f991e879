package forwarder

import "errors"

var (
	ErrInvalidURL       = errors.New("forwarder: invalid destination url")
	ErrClientError      = errors.New("forwarder: destination returned a 4xx response")
	ErrServerError      = errors.New("forwarder: destination returned a 5xx response")
	ErrTransportFailure = errors.New("forwarder: transport error contacting destination")
	ErrTimeout          = errors.New("forwarder: timed out contacting destination")
	ErrCircuitOpen      = errors.New("forwarder: circuit breaker is open for this destination")
)

// unrecoverable reports whether err should stop the retry loop immediately
// rather than being retried up to MaxRetries. Client errors (4xx) and
// malformed destination URLs are unrecoverable; server errors, transport
// failures, and timeouts are retryable.
func unrecoverable(err error) bool {
	return errors.Is(err, ErrClientError) || errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrCircuitOpen)
}
