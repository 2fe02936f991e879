// Package retrydispatch implements the operator-triggered retry
// dispatcher (C9): given an existing webhook event, clear its forwarding
// outcome and re-enqueue delivery against the provider's *current*
// forwarding URL.
package retrydispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/webhookgw/webhookgw/forwarder"
	"github.com/webhookgw/webhookgw/provider"
	"github.com/webhookgw/webhookgw/webhookevent"
)

// ErrNotFound is returned when the event, or the provider it belongs to,
// no longer exists — the transport layer maps this to HTTP 404.
var ErrNotFound = errors.New("retrydispatch: event or provider not found")

// Enqueuer hands a re-delivery task to the forwarder (C6). It is
// satisfied by *forwarder.Dispatcher.
type Enqueuer interface {
	Enqueue(task forwarder.Task)
}

// Dispatcher implements C9.
type Dispatcher struct {
	Events    webhookevent.Store
	Providers provider.Store
	Forward   Enqueuer
}

// Retry clears eventID's forwarding status and re-enqueues delivery
// against its provider's current forwarding URL. The provider lookup
// uses GetByID (not the active-only Registry.LookupByName) because an
// operator may want to retry a delivery for a provider that has since
// been deactivated.
func (d *Dispatcher) Retry(ctx context.Context, eventID uuid.UUID) (*webhookevent.Event, error) {
	event, err := d.Events.Get(ctx, eventID)
	if err != nil {
		return nil, ErrNotFound
	}

	prov, err := d.Providers.GetByID(ctx, event.ProviderID)
	if err != nil {
		return nil, ErrNotFound
	}

	if err := d.Events.ClearForwardingStatus(ctx, eventID); err != nil {
		return nil, err
	}

	d.Forward.Enqueue(forwarder.Task{
		EventID:        event.ID,
		RequestID:      event.RequestID,
		DestinationURL: prov.ForwardingURL,
		Payload:        event.Payload,
	})

	return event, nil
}
