package forwarder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/webhookgw/webhookgw/webhookevent"
)

// Task describes one webhook delivery to run as detached background
// work, decoupled from the inbound request that produced it (§4.6, §5).
type Task struct {
	EventID        uuid.UUID
	RequestID      string
	DestinationURL string
	Payload        []byte
}

// Dispatcher runs forwarding tasks as detached goroutines carrying their
// own context and their own webhookevent.Store handle — never the
// request-scoped one, since its lifetime outlives the HTTP response
// (§4.6, §9). Concurrency is bounded by a semaphore so a burst of
// accepted webhooks cannot unboundedly fan out goroutines.
type Dispatcher struct {
	sender *Sender
	events webhookevent.Store
	sem    *semaphore.Weighted
	logger *slog.Logger
	wg     sync.WaitGroup
}

// DefaultMaxConcurrent bounds in-flight forwarding goroutines absent an
// explicit configuration value.
const DefaultMaxConcurrent = 50

// NewDispatcher builds a Dispatcher. events should be acquired
// independently of any request-scoped handle (e.g. its own pooled query,
// not a shared transaction) per spec.md §5.
func NewDispatcher(sender *Sender, events webhookevent.Store, maxConcurrent int64, logger *slog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender: sender,
		events: events,
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: logger,
	}
}

// Enqueue spawns a detached goroutine delivering task and writing its
// outcome back through UpdateForwardingStatus. It returns immediately;
// the caller (the ingestion pipeline) has already sent its 202 response
// by the time delivery completes.
func (d *Dispatcher) Enqueue(task Task) {
	d.wg.Add(1)
	go d.run(task)
}

func (d *Dispatcher) run(task Task) {
	defer d.wg.Done()

	ctx := context.Background()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.ErrorContext(ctx, "forwarder: semaphore acquire failed", "error", err, "event_id", task.EventID)
		return
	}
	defer d.sem.Release(1)

	outcome := d.sender.Deliver(ctx, task.DestinationURL, task.EventID, task.RequestID, task.Payload)

	err := d.events.UpdateForwardingStatus(ctx, task.EventID, webhookevent.ForwardingOutcome{
		Forwarded:      outcome.Forwarded,
		ResponseStatus: outcome.ResponseStatus,
		ResponseBody:   truncateBody(outcome.ResponseBody),
		ErrorMessage:   truncateError(outcome.ErrorMessage),
		ForwardedAt:    time.Now().UTC(),
	})
	if err != nil {
		// Store outage on writeback is logged, not client-visible — the
		// client already received 202 (§5, §7). An operator can retry
		// via C9 once the store recovers.
		d.logger.ErrorContext(ctx, "forwarder: writeback failed", "error", err, "event_id", task.EventID)
	}
}

// Wait blocks until all in-flight deliveries finish or ctx is done,
// whichever comes first — the grace period §5 gives detached forwarder
// tasks during shutdown.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func truncateBody(s *string) *string {
	if s == nil {
		return nil
	}
	t := webhookevent.TruncateResponseBody(*s)
	return &t
}

func truncateError(s *string) *string {
	if s == nil {
		return nil
	}
	t := webhookevent.TruncateErrorMessage(*s)
	return &t
}
