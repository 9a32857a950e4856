// Package postgres holds the Postgres implementations of the checkout stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

// Open connects to Postgres and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id   UUID PRIMARY KEY,
	owner_id   UUID NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	total      NUMERIC(19,4) NOT NULL,
	currency   CHAR(3) NOT NULL
);

CREATE TABLE IF NOT EXISTS stripe_customers (
	account_id  UUID PRIMARY KEY,
	customer_id TEXT NOT NULL UNIQUE CHECK (customer_id <> ''),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS checkout_tokens (
	session_id TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_comments (
	comment_id UUID PRIMARY KEY,
	order_id   UUID NOT NULL,
	account_id UUID,
	channel    TEXT NOT NULL CHECK (channel IN ('customer', 'admin')),
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS order_comments_order_idx ON order_comments (order_id, created_at);

CREATE TABLE IF NOT EXISTS orphan_customers (
	customer_id TEXT PRIMARY KEY,
	account_id  UUID,
	order_id    UUID,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	parked_at   TIMESTAMPTZ,
	last_error  TEXT NOT NULL DEFAULT ''
);
ALTER TABLE orphan_customers ADD COLUMN IF NOT EXISTS parked_at TIMESTAMPTZ;
ALTER TABLE orphan_customers ADD COLUMN IF NOT EXISTS last_error TEXT NOT NULL DEFAULT '';

CREATE TABLE IF NOT EXISTS webhook_events (
	provider    TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (provider, event_id)
);
`

// Migrate creates the checkout tables if they do not exist. The schema script
// runs on a dedicated connection through the simple query protocol, outside
// the application pool.
func Migrate(ctx context.Context, dsn string) error {
	conn, err := pgconn.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("db: migrate: connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, schema).ReadAll(); err != nil {
		return migrateError(err)
	}
	return nil
}

// migrateError names the failing SQLSTATE when the server rejected the script.
func migrateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("db: migrate: %s (SQLSTATE %s): %w", pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("db: migrate: %w", err)
}

// isUniqueViolation matches SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == "23505"
}

// nullableUUID stores uuid.Nil as NULL.
func nullableUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
