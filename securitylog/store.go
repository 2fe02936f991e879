package securitylog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStorage is the PostgreSQL-backed Storage implementation. Wrap it with
// NewAsync before handing it to the ingestion pipeline — security events
// must never add synchronous latency to request handling.
type PGStorage struct {
	pool *pgxpool.Pool
}

// NewPGStorage wraps a connection pool as a security-log Storage.
func NewPGStorage(pool *pgxpool.Pool) *PGStorage {
	return &PGStorage{pool: pool}
}

func (s *PGStorage) Store(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := make([][]any, 0, len(events))
	for _, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("securitylog: marshal details: %w", err)
		}
		batch = append(batch, []any{id, e.ProviderName, string(e.EventType), e.IPAddress, e.RequestID, json.RawMessage(details), createdAt})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("securitylog: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO security_logs (id, provider_name, event_type, ip_address, request_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, row := range batch {
		if _, err := tx.Exec(ctx, q, row...); err != nil {
			return fmt.Errorf("securitylog: insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("securitylog: commit: %w", err)
	}
	return nil
}

func (s *PGStorage) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	where, args := buildWhere(criteria)

	limit := criteria.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, criteria.Offset)

	q := fmt.Sprintf(`
		SELECT id, provider_name, event_type, ip_address, request_id, details, created_at
		FROM security_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("securitylog: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var eventType string
		var details json.RawMessage
		if err := rows.Scan(&e.ID, &e.ProviderName, &eventType, &e.IPAddress, &e.RequestID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("securitylog: scan: %w", err)
		}
		e.EventType = EventType(eventType)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("securitylog: unmarshal details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStorage) Count(ctx context.Context, criteria Criteria) (int64, error) {
	where, args := buildWhere(criteria)
	q := fmt.Sprintf(`SELECT count(*) FROM security_logs %s`, where)

	var n int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("securitylog: count: %w", err)
	}
	return n, nil
}

func buildWhere(c Criteria) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if c.ProviderName != "" {
		add("provider_name = $%d", c.ProviderName)
	}
	if c.EventType != "" {
		add("event_type = $%d", string(c.EventType))
	}
	if c.IPAddress != "" {
		add("ip_address = $%d", c.IPAddress)
	}
	if c.Since != nil {
		add("created_at >= $%d", *c.Since)
	}
	if c.Until != nil {
		add("created_at < $%d", *c.Until)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
