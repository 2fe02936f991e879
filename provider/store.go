package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookgw/webhookgw/pkg/pg"
)

// PGStore is the PostgreSQL-backed Store implementation.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a connection pool as a provider Store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// LookupByName returns the provider by name, but only if it is active.
// Both "no such provider" and "provider deactivated" surface as
// ErrNotFound — the ingestion pipeline must not disclose which.
func (s *PGStore) LookupByName(ctx context.Context, name string) (*Provider, error) {
	const q = `
		SELECT id, name, secret_key, forwarding_url, is_active, created_at, updated_at
		FROM providers
		WHERE name = $1 AND is_active = true`

	return s.scanOne(s.pool.QueryRow(ctx, q, name))
}

// GetByID returns a provider regardless of active status. Used by the admin
// plane and the retry dispatcher, which must operate on inactive providers
// too (an operator may want to retry a delivery before reactivating).
func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	const q = `
		SELECT id, name, secret_key, forwarding_url, is_active, created_at, updated_at
		FROM providers
		WHERE id = $1`

	return s.scanOne(s.pool.QueryRow(ctx, q, id))
}

func (s *PGStore) scanOne(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.SecretKey, &p.ForwardingURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("provider: query: %w", err)
	}
	return &p, nil
}

// Create inserts a new provider. name must be unique.
func (s *PGStore) Create(ctx context.Context, p *Provider) error {
	if err := validate(p); err != nil {
		return err
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if !p.IsActive {
		p.IsActive = true
	}

	const q = `
		INSERT INTO providers (id, name, secret_key, forwarding_url, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q, p.ID, p.Name, p.SecretKey, p.ForwardingURL, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("provider: insert: %w", err)
	}
	return nil
}

// Update persists changes to secret, forwarding URL, or active flag.
// Name is immutable and is not part of the update set.
func (s *PGStore) Update(ctx context.Context, p *Provider) error {
	if len(p.SecretKey) == 0 {
		return ErrInvalidSecret
	}
	if err := validateURL(p.ForwardingURL); err != nil {
		return err
	}

	const q = `
		UPDATE providers
		SET secret_key = $2, forwarding_url = $3, is_active = $4, updated_at = $5
		WHERE name = $1`

	p.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, q, p.Name, p.SecretKey, p.ForwardingURL, p.IsActive, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("provider: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete refuses to remove a provider while webhook events reference it
// (restrict semantics, enforced by the database foreign key and surfaced
// here as ErrHasEvents).
func (s *PGStore) Delete(ctx context.Context, name string) error {
	const q = `DELETE FROM providers WHERE name = $1`

	tag, err := s.pool.Exec(ctx, q, name)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return ErrHasEvents
		}
		return fmt.Errorf("provider: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all providers ordered by name, for the admin plane.
func (s *PGStore) List(ctx context.Context) ([]*Provider, error) {
	const q = `
		SELECT id, name, secret_key, forwarding_url, is_active, created_at, updated_at
		FROM providers
		ORDER BY name ASC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("provider: list: %w", err)
	}
	defer rows.Close()

	var out []*Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.SecretKey, &p.ForwardingURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("provider: scan: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Stats computes delivery counters for a provider from the webhook_events
// table; see original reference implementation's /providers/{name}/stats.
func (s *PGStore) Stats(ctx context.Context, providerID uuid.UUID) (*Stats, error) {
	const q = `
		SELECT
			count(*),
			count(*) FILTER (WHERE forwarded AND response_status BETWEEN 200 AND 299),
			count(*) FILTER (WHERE forwarded IS FALSE AND error_message IS NOT NULL),
			max(received_at)
		FROM webhook_events
		WHERE provider_id = $1`

	var st Stats
	var lastAt *time.Time
	err := s.pool.QueryRow(ctx, q, providerID).Scan(&st.TotalWebhooks, &st.SuccessfulWebhooks, &st.FailedWebhooks, &lastAt)
	if err != nil {
		return nil, fmt.Errorf("provider: stats: %w", err)
	}
	st.LastWebhookAt = lastAt
	return &st, nil
}

func validate(p *Provider) error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if len(p.SecretKey) == 0 {
		return ErrInvalidSecret
	}
	return validateURL(p.ForwardingURL)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Join(ErrInvalidURL, err)
	}
	return nil
}
