package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/marmota-alpina/gostack-desafio-08/pkg/database"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS kv_store (
		namespace  TEXT        NOT NULL,
		key        TEXT        NOT NULL,
		value      TEXT        NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (namespace, key)
	)`

// Store implements storage.KeyValueStore on a PostgreSQL table. Each store
// instance is scoped to one namespace (typically one device or session).
type Store struct {
	db        database.DBTX
	namespace string
}

// New creates a PostgreSQL-backed store for the given namespace.
func New(db database.DBTX, namespace string) *Store {
	return &Store{db: db, namespace: namespace}
}

// EnsureSchema creates the kv_store table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create kv_store table: %w", err)
	}
	return nil
}

// GetItem returns the value under key.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM kv_store WHERE namespace = $1 AND key = $2`

	var value string
	if err := s.db.QueryRow(ctx, query, s.namespace, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select kv %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem upserts the value under key.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.db.Exec(ctx, query, s.namespace, key, value); err != nil {
		return fmt.Errorf("upsert kv %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	query := `DELETE FROM kv_store WHERE namespace = $1 AND key = $2`

	if _, err := s.db.Exec(ctx, query, s.namespace, key); err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
