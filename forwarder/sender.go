// Package forwarder delivers webhook payloads to their internal
// destination with the bounded retry state machine C6 specifies, and
// dispatches that delivery as detached background work decoupled from the
// inbound HTTP request's lifecycle.
package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxRetries is the default total attempt ceiling: up to this many HTTP
// attempts in all, not this many retries on top of a first attempt.
const MaxRetries = 3

// DefaultTimeout is the default per-attempt HTTP timeout.
const DefaultTimeout = 10 * time.Second

// Attempt captures one delivery attempt's outcome, mainly for logging.
type Attempt struct {
	Number     int
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Outcome is the terminal result of Deliver: either a successful response
// or a terminal failure, matching the fields webhookevent.ForwardingOutcome
// needs.
type Outcome struct {
	Forwarded      bool
	ResponseStatus *int
	ResponseBody   *string
	ErrorMessage   *string
	Attempts       []Attempt
}

// Sender issues the outbound HTTP POST and runs the retry state machine.
type Sender struct {
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    ExponentialBackoff
	breakers   *Breakers
}

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient overrides the HTTP client used for delivery, mainly for
// tests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout overrides the per-attempt timeout (FORWARDING_TIMEOUT_SECONDS).
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxRetries overrides the retry ceiling.
func WithMaxRetries(n int) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBreakers supplies a per-destination circuit breaker registry. If
// omitted, no circuit breaking is applied.
func WithBreakers(b *Breakers) Option {
	return func(s *Sender) {
		s.breakers = b
	}
}

// WithBackoffBase overrides the backoff base interval (1s by default, per
// spec.md §4.6's 2^attempt second schedule), mainly so tests don't have
// to wait out real seconds of backoff.
func WithBackoffBase(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.backoff.Base = d
		}
	}
}

// NewSender builds a Sender with connection pooling tuned for many small
// outbound POSTs to a modest number of distinct destinations.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:    DefaultTimeout,
		maxRetries: MaxRetries,
		backoff:    ExponentialBackoff{Base: time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver runs the retry state machine against destinationURL for one
// webhook event: 2xx stops successfully; 4xx stops as a client-error
// failure without retrying; 5xx, transport errors, and timeouts back off
// 2^attempt seconds and retry, up to maxRetries total attempts; an
// unrecoverable error (malformed URL, open circuit) stops immediately.
func (s *Sender) Deliver(ctx context.Context, destinationURL string, eventID uuid.UUID, requestID string, payload []byte) Outcome {
	var breaker *CircuitBreaker
	if s.breakers != nil {
		breaker = s.breakers.For(destinationURL)
	}

	if err := validateURL(destinationURL); err != nil {
		return failureOutcome(err)
	}

	if breaker != nil && !breaker.Allow() {
		return failureOutcome(ErrCircuitOpen)
	}

	var attempts []Attempt
	var lastErr error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff.NextInterval(attempt)
			select {
			case <-ctx.Done():
				return failureOutcome(ctx.Err())
			case <-time.After(delay):
			}
		}

		status, body, duration, err := s.attempt(ctx, destinationURL, eventID, requestID, payload)
		attempts = append(attempts, Attempt{Number: attempt + 1, StatusCode: status, Duration: duration, Err: err})

		if breaker != nil {
			if err == nil {
				breaker.RecordSuccess()
			} else {
				breaker.RecordFailure()
			}
		}

		if err == nil {
			return successOutcome(status, body, attempts)
		}

		lastErr = err
		if unrecoverable(err) {
			return failureOutcomeWithAttempts(err, attempts)
		}
	}

	return failureOutcomeWithAttempts(lastErr, attempts)
}

func (s *Sender) attempt(ctx context.Context, destinationURL string, eventID uuid.UUID, requestID string, payload []byte) (status int, body string, duration time.Duration, err error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, destinationURL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", time.Since(start), fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-ID", eventID.String())
	req.Header.Set("X-Request-ID", requestID)

	resp, err := s.client.Do(req)
	duration = time.Since(start)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return 0, "", duration, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return 0, "", duration, fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	bodyStr := strings.ReplaceAll(string(respBody), "\n", " ")

	status = resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return status, bodyStr, duration, nil
	case status >= 400 && status < 500:
		return status, bodyStr, duration, fmt.Errorf("%w: status %d", ErrClientError, status)
	default:
		return status, bodyStr, duration, fmt.Errorf("%w: status %d", ErrServerError, status)
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: must be an absolute http(s) url", ErrInvalidURL)
	}
	return nil
}

func successOutcome(status int, body string, attempts []Attempt) Outcome {
	s := status
	b := body
	return Outcome{Forwarded: true, ResponseStatus: &s, ResponseBody: &b, Attempts: attempts}
}

func failureOutcome(err error) Outcome {
	return failureOutcomeWithAttempts(err, nil)
}

func failureOutcomeWithAttempts(err error, attempts []Attempt) Outcome {
	msg := err.Error()
	return Outcome{Forwarded: false, ErrorMessage: &msg, Attempts: attempts}
}
