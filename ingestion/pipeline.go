package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/webhookgw/webhookgw/forwarder"
	"github.com/webhookgw/webhookgw/provider"
	"github.com/webhookgw/webhookgw/ratelimiter"
	"github.com/webhookgw/webhookgw/replay"
	"github.com/webhookgw/webhookgw/securitylog"
	"github.com/webhookgw/webhookgw/signature"
	"github.com/webhookgw/webhookgw/webhookevent"
)

// Dispatcher hands a validated webhook off to the detached forwarder
// (C6). Enqueue must not block on the delivery itself — it only needs to
// schedule it.
type Dispatcher interface {
	Enqueue(task forwarder.Task)
}

// Request is everything the transport layer captures off the wire for
// one inbound webhook POST.
type Request struct {
	ProviderName string
	Signature    string // X-Signature, as received
	Timestamp    string // X-Timestamp, as received
	RequestID    string // X-Request-ID, as received
	Headers      map[string]string
	Body         []byte
	ClientIP     string
}

// Result is the accepted outcome of Ingest.
type Result struct {
	WebhookID uuid.UUID
}

// maxRequestIDLen is spec.md §6's bound on X-Request-ID.
const maxRequestIDLen = 255

// Pipeline wires C1-C6 and C8 together into the per-request state
// machine C7 specifies: LOOKUP_PROVIDER -> RATE_LIMIT -> AUTHENTICATE ->
// TIMESTAMP_CHECK -> REPLAY_CLAIM -> PARSE_JSON -> PERSIST ->
// ENQUEUE_FORWARD -> ACK.
type Pipeline struct {
	Providers   provider.Registry
	Limiter     ratelimiter.Limiter
	Replay      replay.Store
	Events      webhookevent.Store
	SecurityLog securitylog.Storage
	Dispatch    Dispatcher
	Logger      *slog.Logger

	// ReplayWindow is the replay-protection TTL (REPLAY_PROTECTION_WINDOW_SECONDS).
	ReplayWindow time.Duration
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Ingest runs req through the full pipeline. A nil error and populated
// Result means the request was accepted (202); a non-nil *Rejection
// carries the HTTP status and whether a SecurityEvent was logged.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Result, *Rejection) {
	if req.Signature == "" || req.Timestamp == "" || req.RequestID == "" {
		return Result{}, reject(ReasonMissingHeader, "missing required header", nil)
	}
	if len(req.RequestID) > maxRequestIDLen {
		return Result{}, reject(ReasonMissingHeader, "x-request-id exceeds maximum length", nil)
	}

	prov, err := p.Providers.LookupByName(ctx, req.ProviderName)
	if err != nil {
		return Result{}, reject(ReasonProviderNotFound, "unknown or inactive provider", nil)
	}

	if rej := p.checkRateLimit(ctx, req, prov); rej != nil {
		return Result{}, rej
	}

	if !signature.Verify(req.Body, prov.SecretKey, req.Signature) {
		p.logSecurity(ctx, reject(ReasonInvalidSignature, "signature mismatch", nil), req)
		return Result{}, reject(ReasonInvalidSignature, "signature mismatch", nil)
	}

	if rej := p.checkTimestamp(ctx, req); rej != nil {
		return Result{}, rej
	}

	if err := p.Replay.Claim(ctx, req.ProviderName, req.RequestID, p.replayWindow()); err != nil {
		rej := reject(ReasonReplay, "request id already processed", err)
		p.logSecurity(ctx, rej, req)
		return Result{}, rej
	}

	var payload json.RawMessage
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return Result{}, reject(ReasonMalformedJSON, "request body is not valid JSON", err)
	}

	event := &webhookevent.Event{
		ID:             uuid.New(),
		ProviderID:     prov.ID,
		RequestID:      req.RequestID,
		Payload:        []byte(payload),
		Headers:        lowercaseHeaders(req.Headers),
		SignatureValid: true,
		ReceivedAt:     time.Now().UTC(),
	}

	if err := p.Events.Insert(ctx, event); err != nil {
		if err == webhookevent.ErrDuplicateRequestID {
			rej := reject(ReasonReplay, "request id already recorded", err)
			p.logSecurity(ctx, rej, req)
			return Result{}, rej
		}
		return Result{}, reject(ReasonStoreFailure, "failed to persist webhook event", err)
	}

	p.Dispatch.Enqueue(forwarder.Task{
		EventID:        event.ID,
		RequestID:      req.RequestID,
		DestinationURL: prov.ForwardingURL,
		Payload:        []byte(payload),
	})

	return Result{WebhookID: event.ID}, nil
}

func (p *Pipeline) checkRateLimit(ctx context.Context, req Request, prov *provider.Provider) *Rejection {
	result, err := p.Limiter.Admit(ctx, prov.ID)
	if err != nil {
		// Fail open (§4.3, §5, §7): a rate-limiter backend outage must not
		// block ingestion. Logged as a warning, not a rejection.
		p.logger().WarnContext(ctx, "rate limiter unavailable, admitting request", "error", err, "provider", req.ProviderName)
		return nil
	}
	if !result.Allowed {
		rej := reject(ReasonRateLimited, "rate limit exceeded", nil)
		p.logSecurity(ctx, rej, req)
		return rej
	}
	return nil
}

func (p *Pipeline) checkTimestamp(ctx context.Context, req Request) *Rejection {
	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		rej := reject(ReasonInvalidTimestamp, "x-timestamp is not a valid ISO-8601 timestamp", err)
		p.logSecurity(ctx, rej, req)
		return rej
	}

	now := time.Now().In(ts.Location())
	diff := now.Sub(ts)

	if diff > p.replayWindow() {
		rej := reject(ReasonTimestampTooOld, "x-timestamp is older than the replay window", nil)
		p.logSecurityWithDetails(ctx, rej, req, map[string]any{"time_diff": diff.Seconds()})
		return rej
	}
	if diff < 0 {
		rej := reject(ReasonTimestampFuture, "x-timestamp is in the future", nil)
		p.logSecurityWithDetails(ctx, rej, req, map[string]any{"time_diff": diff.Seconds()})
		return rej
	}
	return nil
}

func (p *Pipeline) replayWindow() time.Duration {
	if p.ReplayWindow > 0 {
		return p.ReplayWindow
	}
	return 300 * time.Second
}

func (p *Pipeline) logSecurity(ctx context.Context, rej *Rejection, req Request) {
	p.logSecurityWithDetails(ctx, rej, req, nil)
}

// logSecurityWithDetails appends a SecurityEvent via C8, best-effort: a
// failure here is logged at warn and never surfaces to the caller (§4.8,
// §7 — "security-logger failures are swallowed").
func (p *Pipeline) logSecurityWithDetails(ctx context.Context, rej *Rejection, req Request, details map[string]any) {
	if !rej.LogsSecurityEvent() || p.SecurityLog == nil {
		return
	}

	var requestID *string
	if req.RequestID != "" {
		requestID = &req.RequestID
	}

	event := securitylog.Event{
		ID:           uuid.New().String(),
		ProviderName: req.ProviderName,
		EventType:    eventType(rej.Reason),
		IPAddress:    truncateIP(req.ClientIP),
		RequestID:    requestID,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}

	if err := p.SecurityLog.Store(ctx, event); err != nil {
		p.logger().WarnContext(ctx, "failed to record security event", "error", err, "event_type", event.EventType)
	}
}

func eventType(r Reason) securitylog.EventType {
	switch r {
	case ReasonRateLimited:
		return securitylog.EventRateLimitExceeded
	case ReasonInvalidSignature:
		return securitylog.EventInvalidSignature
	case ReasonInvalidTimestamp:
		return securitylog.EventInvalidTimestamp
	case ReasonTimestampTooOld:
		return securitylog.EventTimestampTooOld
	case ReasonTimestampFuture:
		return securitylog.EventTimestampInFuture
	case ReasonReplay:
		return securitylog.EventReplayAttempt
	default:
		return securitylog.EventType(fmt.Sprintf("unknown:%s", r))
	}
}

func truncateIP(ip string) string {
	if len(ip) > securitylog.IPAddressMaxLen {
		return ip[:securitylog.IPAddressMaxLen]
	}
	return ip
}

func lowercaseHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[lowercaseASCII(k)] = v
	}
	return out
}

func lowercaseASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
