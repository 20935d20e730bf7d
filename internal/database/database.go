// Package database builds the connection pool and bootstraps the schema the
// ledger and the durable task registry need.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id    text PRIMARY KEY,
		email      text NOT NULL DEFAULT '',
		credits    integer NOT NULL DEFAULT 0,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_movements (
		id            uuid PRIMARY KEY,
		user_id       text NOT NULL REFERENCES accounts(user_id),
		change        integer NOT NULL,
		reason        text NOT NULL,
		balance_after integer NOT NULL,
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS credit_movements_user_created_idx
		ON credit_movements (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id            text PRIMARY KEY,
		owner_id      text NOT NULL,
		model         text NOT NULL DEFAULT '',
		polling_url   text NOT NULL DEFAULT '',
		state         text NOT NULL,
		result        jsonb,
		output        text NOT NULL DEFAULT '',
		detail        text NOT NULL DEFAULT '',
		credits_after integer,
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema applies the idempotent DDL above. River's own tables are
// handled separately by rivermigrate.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
