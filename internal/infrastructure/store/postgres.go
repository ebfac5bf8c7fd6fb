package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/event-ticketing/internal/domain/ledger"
	"github.com/lib/pq"
)

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	organizer_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	starts_at    TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ticket_stock (
	id                 TEXT PRIMARY KEY,
	event_id           TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	ticket_type        TEXT NOT NULL,
	price              BIGINT NOT NULL CHECK (price >= 0),
	quantity_available INTEGER NOT NULL CHECK (quantity_available >= 0),
	quantity_sold      INTEGER NOT NULL DEFAULT 0,
	CONSTRAINT ticket_stock_sold_bounds CHECK (quantity_sold >= 0 AND quantity_sold <= quantity_available)
);

CREATE INDEX IF NOT EXISTS idx_ticket_stock_event ON ticket_stock (event_id);

CREATE TABLE IF NOT EXISTS purchases (
	seq           BIGSERIAL,
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	ticket_id     TEXT NOT NULL REFERENCES ticket_stock(id),
	quantity      INTEGER NOT NULL CHECK (quantity > 0),
	total_price   BIGINT NOT NULL CHECK (total_price >= 0),
	purchase_time TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_purchases_user_time ON purchases (user_id, purchase_time DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_purchases_time ON purchases (purchase_time DESC);
`

// Migrate creates the ticketing tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SQLSTATE codes that mean the work may succeed if tried again.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqQueryCanceled        = "57014"
	pqCheckViolation       = "23514"
	pqForeignKeyViolation  = "23503"
)

// classifyPostgresError maps driver errors onto the ledger error taxonomy.
func classifyPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ledger.ErrTransientConflict, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable, pqQueryCanceled:
			return fmt.Errorf("%w: %s", ledger.ErrTransientConflict, pqErr.Message)
		case pqCheckViolation:
			// ticket_stock_sold_bounds backs up the conditional update.
			if pqErr.Constraint == "ticket_stock_sold_bounds" {
				return ledger.ErrInsufficientStock
			}
		}
	}
	return fmt.Errorf("%w: %v", ledger.ErrStorageFailure, err)
}
