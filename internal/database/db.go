package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect validates the env-provided config and opens a pgx pool.
func Connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg := ConfigFromEnv()
	if cfg.User == "" || cfg.Host == "" || cfg.Port == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("db config incomplete: DB_USER/DB_HOST/DB_PORT/DB_NAME must be set")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id              BIGSERIAL PRIMARY KEY,
		owner_id        BIGINT NOT NULL,
		external_ref    TEXT NOT NULL,
		name            TEXT NOT NULL,
		last_price      DOUBLE PRECISION NOT NULL,
		last_checked_at TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (owner_id, external_ref)
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id          BIGSERIAL PRIMARY KEY,
		item_id     BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		price       DOUBLE PRECISION NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_item ON price_history (item_id, observed_at)`,
	`CREATE TABLE IF NOT EXISTS settings (
		owner_id         BIGINT PRIMARY KEY,
		interval_seconds INTEGER NOT NULL
	)`,
}

// Migrate applies the schema. Statements are idempotent, so running it on
// every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
