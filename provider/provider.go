// Package provider models the webhook providers configured on the gateway:
// their name, HMAC secret, and forwarding destination.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Provider is a configured external source of webhooks.
//
// Name is unique and immutable after creation. SecretKey is never returned
// over the admin API (see Response).
type Provider struct {
	ID            uuid.UUID
	Name          string
	SecretKey     []byte
	ForwardingURL string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	ErrNotFound      = errors.New("provider: not found")
	ErrNameTaken     = errors.New("provider: name already in use")
	ErrHasEvents     = errors.New("provider: cannot delete, referencing webhook events exist")
	ErrInvalidName   = errors.New("provider: name is required")
	ErrInvalidSecret = errors.New("provider: secret key is required")
	ErrInvalidURL    = errors.New("provider: forwarding url must be an absolute http(s) url")
)

// Registry looks up provider configuration by name. This is the read path
// consumed by the ingestion pipeline (C5 in the design doc); it never
// distinguishes "missing" from "inactive" to callers outside this package.
type Registry interface {
	LookupByName(ctx context.Context, name string) (*Provider, error)
}

// Store is the full persistence contract for provider configuration,
// backing both Registry and the admin CRUD surface.
type Store interface {
	Registry

	Create(ctx context.Context, p *Provider) error
	Update(ctx context.Context, p *Provider) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*Provider, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	Stats(ctx context.Context, providerID uuid.UUID) (*Stats, error)
}

// Stats summarizes webhook delivery outcomes for a single provider, used by
// the admin stats endpoint.
type Stats struct {
	TotalWebhooks      int64
	SuccessfulWebhooks int64
	FailedWebhooks     int64
	LastWebhookAt      *time.Time
}
