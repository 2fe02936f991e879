package webhookevent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookgw/webhookgw/pkg/pg"
)

// PGStore is the PostgreSQL-backed Store implementation. Payload and
// Headers are stored as jsonb; Headers as a JSON object of lowercased
// header name to value.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a connection pool as a webhookevent Store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Insert persists a new event. The caller supplies ID (application-generated,
// per SPEC_FULL.md §3, so the ID is known before the forwarder's detached
// task is dispatched).
func (s *PGStore) Insert(ctx context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}

	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return fmt.Errorf("webhookevent: marshal headers: %w", err)
	}

	const q = `
		INSERT INTO webhook_events (
			id, provider_id, request_id, payload, headers, signature_valid,
			forwarded, response_status, response_body, error_message,
			received_at, forwarded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.pool.Exec(ctx, q,
		e.ID, e.ProviderID, e.RequestID, json.RawMessage(e.Payload), json.RawMessage(headers), e.SignatureValid,
		e.Forwarded, e.ResponseStatus, e.ResponseBody, e.ErrorMessage,
		e.ReceivedAt, e.ForwardedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateRequestID
		}
		return fmt.Errorf("webhookevent: insert: %w", err)
	}
	return nil
}

// UpdateForwardingStatus applies a forwarding outcome. Last writer wins:
// both the forwarder's first attempt and the retry dispatcher's later
// re-delivery call this with the same shape, and whichever commits last
// determines the row's final forwarding fields.
func (s *PGStore) UpdateForwardingStatus(ctx context.Context, id uuid.UUID, outcome ForwardingOutcome) error {
	const q = `
		UPDATE webhook_events
		SET forwarded = $2, response_status = $3, response_body = $4,
			error_message = $5, forwarded_at = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id,
		outcome.Forwarded, outcome.ResponseStatus, outcome.ResponseBody,
		outcome.ErrorMessage, outcome.ForwardedAt,
	)
	if err != nil {
		return fmt.Errorf("webhookevent: update forwarding status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearForwardingStatus resets an event's forwarding outcome to its
// initial unforwarded state, so the retry dispatcher (C9) can re-enqueue
// delivery against the provider's current forwarding URL.
func (s *PGStore) ClearForwardingStatus(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE webhook_events
		SET forwarded = false, response_status = NULL, response_body = NULL,
			error_message = NULL, forwarded_at = NULL
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("webhookevent: clear forwarding status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns a single event by ID.
func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	const q = `
		SELECT id, provider_id, request_id, payload, headers, signature_valid,
			forwarded, response_status, response_body, error_message,
			received_at, forwarded_at
		FROM webhook_events
		WHERE id = $1`

	e, err := s.scanOne(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *PGStore) scanOne(row interface {
	Scan(dest ...any) error
}) (*Event, error) {
	var e Event
	var payload, headers json.RawMessage
	err := row.Scan(
		&e.ID, &e.ProviderID, &e.RequestID, &payload, &headers, &e.SignatureValid,
		&e.Forwarded, &e.ResponseStatus, &e.ResponseBody, &e.ErrorMessage,
		&e.ReceivedAt, &e.ForwardedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	if err := json.Unmarshal(headers, &e.Headers); err != nil {
		return nil, fmt.Errorf("webhookevent: unmarshal headers: %w", err)
	}
	return &e, nil
}

// List returns events matching f, most-recently-received first.
func (s *PGStore) List(ctx context.Context, f Filter) ([]*Event, error) {
	where, args := buildWhere(f)

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	q := fmt.Sprintf(`
		SELECT id, provider_id, request_id, payload, headers, signature_valid,
			forwarded, response_status, response_body, error_message,
			received_at, forwarded_at
		FROM webhook_events
		%s
		ORDER BY received_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("webhookevent: list: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := s.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("webhookevent: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of events matching f, ignoring Limit/Offset.
func (s *PGStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := buildWhere(f)
	q := fmt.Sprintf(`SELECT count(*) FROM webhook_events %s`, where)

	var n int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("webhookevent: count: %w", err)
	}
	return n, nil
}

func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.ProviderID != nil {
		add("provider_id = $%d", *f.ProviderID)
	}
	if f.Since != nil {
		add("received_at >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("received_at < $%d", *f.Until)
	}
	if f.Forwarded != nil {
		add("forwarded = $%d", *f.Forwarded)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
