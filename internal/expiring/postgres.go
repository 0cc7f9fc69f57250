package expiring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"onboarding/pkg/platform/sentinel"
)

// Schema creates the table used by PostgresBackend.
const Schema = `
CREATE TABLE IF NOT EXISTS expiring_values (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS expiring_values_expires_at_idx ON expiring_values (expires_at);
`

// PostgresBackend stores values in PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresBackend wraps a pgx pool. The pool lifecycle is managed by the
// caller.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool, now: time.Now}
}

// Migrate creates the backing table when missing.
func (p *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate expiring_values: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM expiring_values WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (p *PostgresBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO expiring_values (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, p.now().Add(ttl+expiryGrace))
	return err
}

func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM expiring_values WHERE key = $1`, key)
	return err
}

// Purge removes rows past their housekeeping expiry and reports how many
// were deleted.
func (p *PostgresBackend) Purge(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM expiring_values WHERE expires_at < $1`, p.now())
	if err != nil {
		return 0, fmt.Errorf("purge expiring_values: %w", err)
	}
	return tag.RowsAffected(), nil
}
