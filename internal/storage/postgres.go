package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable Store backend.
//
// Schema:
//
//	CREATE TABLE consent_records (
//	    scope      TEXT NOT NULL,
//	    key        TEXT NOT NULL,
//	    value      TEXT NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (scope, key)
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL consent store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Save upserts value under (scope, key).
func (s *PostgresStore) Save(ctx context.Context, scope, key, value string, expiresAt time.Time) error {
	query := `
		INSERT INTO consent_records (scope, key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, scope, key, value, expiresAt, time.Now())
	return err
}

// Load reads the value under (scope, key). Expired rows read as absent;
// cleanup is left to PurgeExpired.
func (s *PostgresStore) Load(ctx context.Context, scope, key string) (string, error) {
	query := `
		SELECT value
		FROM consent_records
		WHERE scope = $1 AND key = $2 AND expires_at > NOW()
	`

	var value string
	err := s.pool.QueryRow(ctx, query, scope, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Delete removes the value under (scope, key).
func (s *PostgresStore) Delete(ctx context.Context, scope, key string) error {
	query := `DELETE FROM consent_records WHERE scope = $1 AND key = $2`
	_, err := s.pool.Exec(ctx, query, scope, key)
	return err
}

// PurgeExpired deletes rows past their expiry and returns the count.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM consent_records WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

var _ Store = (*PostgresStore)(nil)
