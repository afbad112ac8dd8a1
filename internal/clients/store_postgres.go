package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/models"
	"flowgate/pkg/platform/sentinel"
	txcontext "flowgate/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) FindClient(ctx context.Context, clientID string) (*RESTClient, error) {
	query := `
		SELECT client_id, secret_hash, name, COALESCE(destination_id, ''), scopes, super, created_at
		FROM rest_clients WHERE client_id = $1
	`
	var (
		c      RESTClient
		scopes []string
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, clientID).Scan(
		&c.ClientID, &c.SecretHash, &c.Name, &c.DestinationID, pq.Array(&scopes), &c.Super, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find rest client: %w", err)
	}
	for _, sc := range scopes {
		c.Scopes = append(c.Scopes, access.Scope(sc))
	}
	return &c, nil
}

func (s *PostgresStore) SaveClient(ctx context.Context, c *RESTClient) error {
	query := `
		INSERT INTO rest_clients (client_id, secret_hash, name, destination_id, scopes, super)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		ON CONFLICT (client_id) DO UPDATE SET
			secret_hash = EXCLUDED.secret_hash,
			name = EXCLUDED.name,
			destination_id = EXCLUDED.destination_id,
			scopes = EXCLUDED.scopes,
			super = EXCLUDED.super
	`
	scopes := make([]string, len(c.Scopes))
	for i, sc := range c.Scopes {
		scopes[i] = string(sc)
	}
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		c.ClientID, c.SecretHash, c.Name, c.DestinationID, pq.Array(scopes), c.Super); err != nil {
		return fmt.Errorf("save rest client: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindDestination(ctx context.Context, id string) (*models.Destination, error) {
	var d models.Destination
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT id, name, kafka_public_key FROM destinations WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.KafkaPublicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find destination: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) SaveDestination(ctx context.Context, d *models.Destination) error {
	query := `
		INSERT INTO destinations (id, name, kafka_public_key) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, kafka_public_key = EXCLUDED.kafka_public_key
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, d.ID, d.Name, d.KafkaPublicKey); err != nil {
		return fmt.Errorf("save destination: %w", err)
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*InMemoryStore)(nil)
)
