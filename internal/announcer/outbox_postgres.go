package announcer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	txcontext "flowgate/pkg/platform/tx"
)

// PostgresOutbox stores entries in the outbox table. Writes inside a store
// transaction commit or roll back with it.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresOutbox) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// The record key is the aggregate id; both are the channel id.
const selectEntry = `
	SELECT id, aggregate_type, aggregate_id, event_type, topic, payload, attempts, created_at, published_at
	FROM outbox`

func (s *PostgresOutbox) Append(ctx context.Context, entries ...*Entry) error {
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, topic, payload, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, e := range entries {
		_, err := s.execer(ctx).ExecContext(ctx, query,
			e.ID, e.AggregateType, e.AggregateID, e.EventType, e.Topic, e.Payload, e.Attempts, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	}
	return nil
}

func (s *PostgresOutbox) Find(ctx context.Context, ids []uuid.UUID) ([]*Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	rows, err := s.execer(ctx).QueryContext(ctx,
		selectEntry+` WHERE id = ANY($1::uuid[]) AND published_at IS NULL ORDER BY created_at`,
		pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find outbox entries: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresOutbox) Pending(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		selectEntry+` WHERE published_at IS NULL AND created_at < $1 ORDER BY created_at LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox entries: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresOutbox) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox entries: %w", err)
	}
	return n, nil
}

func (s *PostgresOutbox) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE outbox SET published_at = $2 WHERE id = $1 AND published_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}
	return nil
}

func (s *PostgresOutbox) RecordAttempt(ctx context.Context, id uuid.UUID) error {
	_, err := s.execer(ctx).ExecContext(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record outbox attempt: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		var (
			e           Entry
			publishedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Topic,
			&e.Payload, &e.Attempts, &e.CreatedAt, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			e.PublishedAt = &t
		}
		e.Key = e.AggregateID
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return out, nil
}

var (
	_ OutboxStore = (*PostgresOutbox)(nil)
	_ OutboxStore = (*InMemoryOutbox)(nil)
)
