package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS console;
CREATE TABLE IF NOT EXISTS console.tab_storage (
	scope      text        NOT NULL,
	key        text        NOT NULL,
	value      text        NOT NULL,
	updated_at timestamptz NOT NULL,
	expires_at timestamptz NOT NULL,
	PRIMARY KEY (scope, key)
);
CREATE INDEX IF NOT EXISTS tab_storage_expires_at_idx ON console.tab_storage (expires_at);
`

// PostgresBackend implements Backend using PostgreSQL (console.tab_storage).
type PostgresBackend struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time

	// ownsPool is true when the backend created the pool and must close it.
	ownsPool bool
}

// OpenPostgresBackend builds a pool from cfg.DatabaseURL, validates connectivity and
// ensures the schema exists.
func OpenPostgresBackend(ctx context.Context, cfg BackendConfig) (*PostgresBackend, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("%w: database url required", ErrConfig)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	b := NewPostgresBackend(pool, cfg.TTL)
	b.ownsPool = true

	if err := b.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := b.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// NewPostgresBackend wraps an existing pool. The caller keeps ownership of the pool.
func NewPostgresBackend(pool *pgxpool.Pool, ttl time.Duration) *PostgresBackend {
	return &PostgresBackend{
		pool: pool,
		ttl:  ttlOrDefault(ttl),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the storage table when missing.
func (p *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresSchemaSQL)
	return err
}

// Get returns the live entry for (scope, key).
func (p *PostgresBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx, `
		SELECT value
		FROM console.tab_storage
		WHERE scope = $1 AND key = $2 AND expires_at > $3
	`, scope, key, p.now()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set upserts the entry and refreshes its expiry.
func (p *PostgresBackend) Set(ctx context.Context, scope, key, value string) error {
	now := p.now()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO console.tab_storage (scope, key, value, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = EXCLUDED.updated_at,
		    expires_at = EXCLUDED.expires_at
	`, scope, key, value, now, now.Add(p.ttl))
	return err
}

// Remove deletes the entry.
func (p *PostgresBackend) Remove(ctx context.Context, scope, key string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM console.tab_storage
		WHERE scope = $1 AND key = $2
	`, scope, key)
	return err
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (p *PostgresBackend) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM console.tab_storage
		WHERE expires_at <= $1
	`, p.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Ping checks we can acquire a connection within a short timeout.
func (p *PostgresBackend) Ping(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, 3*time.Second)
	defer cancel()

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// Close closes the pool when the backend owns it.
func (p *PostgresBackend) Close() error {
	if p.ownsPool && p.pool != nil {
		p.pool.Close()
	}
	return nil
}
