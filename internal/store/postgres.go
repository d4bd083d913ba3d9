package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE SCHEMA IF NOT EXISTS stockgame;
CREATE TABLE IF NOT EXISTS stockgame.kv (
	scope      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (scope, key)
);
`

// Postgres stores values as JSONB rows in stockgame.kv.
type Postgres struct {
	db    *pgxpool.Pool
	owned bool
}

// postgresPoolConfig sizes the pool for the kv workload: short single-row
// reads and upserts, a handful of concurrent sessions persisting at once.
func postgresPoolConfig(databaseURL string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	rt := cfg.ConnConfig.RuntimeParams
	rt["application_name"] = "stockgame"
	if _, ok := rt["statement_timeout"]; !ok {
		rt["statement_timeout"] = "5000"
	}
	return cfg, nil
}

// OpenPostgres connects, pings and migrates. The returned store owns the
// pool and closes it on Close.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := postgresPoolConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	pg, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	pg.owned = true
	return pg, nil
}

// NewPostgres migrates the schema on a pool the caller keeps ownership of.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrate postgres store: %w", err)
	}
	return &Postgres{db: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.get(ctx, scopePlayer, key)
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	return p.set(ctx, scopePlayer, key, value)
}

func (p *Postgres) GetShared(ctx context.Context, key string) ([]byte, bool, error) {
	return p.get(ctx, scopeShared, key)
}

func (p *Postgres) SetShared(ctx context.Context, key string, value []byte) error {
	return p.set(ctx, scopeShared, key, value)
}

// Close releases the pool when the store opened it itself.
func (p *Postgres) Close() error {
	if p.owned {
		p.db.Close()
	}
	return nil
}

func (p *Postgres) get(ctx context.Context, scope, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRow(ctx, `
		SELECT value::text
		FROM stockgame.kv
		WHERE scope = $1 AND key = $2
	`, scope, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (p *Postgres) set(ctx context.Context, scope, key string, value []byte) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO stockgame.kv (scope, key, value, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, scope, key, string(value))
	return err
}
