package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/example/event-ticketing/internal/domain/ledger"
)

// PostgresLedgerStore implements ledger.Store on PostgreSQL.
//
// A purchase is one transaction: a conditional UPDATE that only matches while
// quantity_sold + quantity <= quantity_available, followed by the INSERT of the
// purchase row. The UPDATE takes the row lock for that ticket only, so purchases
// of different tickets never contend.
type PostgresLedgerStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewPostgresLedgerStore(db *sql.DB, lockTimeout time.Duration) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db, lockTimeout: lockTimeout}
}

// Purchase implements ledger.Store.
func (s *PostgresLedgerStore) Purchase(ctx context.Context, req ledger.PurchaseRequest) (ledger.PurchaseRecord, int, error) {
	if req.Quantity <= 0 {
		return ledger.PurchaseRecord{}, 0, ledger.ErrInvalidQuantity
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.PurchaseRecord{}, 0, classifyPostgresError(err)
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return ledger.PurchaseRecord{}, 0, classifyPostgresError(err)
		}
	}

	// quantity_available is an INTEGER column, so no ticket can hold more.
	if int64(req.Quantity) > math.MaxInt32 {
		return ledger.PurchaseRecord{}, 0, s.rejection(ctx, tx, req.TicketID)
	}

	var (
		price     int64
		available int
		sold      int
	)
	// The predicate subtracts so it cannot overflow int4 before the row matches.
	err = tx.QueryRowContext(ctx,
		`UPDATE ticket_stock
		 SET quantity_sold = quantity_sold + $1
		 WHERE id = $2 AND $1 <= quantity_available - quantity_sold
		 RETURNING price, quantity_available, quantity_sold`,
		req.Quantity, req.TicketID,
	).Scan(&price, &available, &sold)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.PurchaseRecord{}, 0, s.rejection(ctx, tx, req.TicketID)
	}
	if err != nil {
		return ledger.PurchaseRecord{}, 0, classifyPostgresError(err)
	}

	record := ledger.PurchaseRecord{
		PurchaseID:   req.PurchaseID,
		UserID:       req.UserID,
		TicketID:     req.TicketID,
		Quantity:     req.Quantity,
		TotalPrice:   price * int64(req.Quantity),
		PurchaseTime: req.PurchasedAt,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO purchases (id, user_id, ticket_id, quantity, total_price, purchase_time)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.PurchaseID,
		record.UserID,
		record.TicketID,
		record.Quantity,
		record.TotalPrice,
		record.PurchaseTime,
	)
	if err != nil {
		return ledger.PurchaseRecord{}, 0, classifyPostgresError(err)
	}

	if err := tx.Commit(); err != nil {
		return ledger.PurchaseRecord{}, 0, classifyPostgresError(err)
	}

	return record, available - sold, nil
}

// rejection tells a missing ticket apart from one without enough stock after
// the conditional update matched nothing.
func (s *PostgresLedgerStore) rejection(ctx context.Context, tx *sql.Tx, ticketID string) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM ticket_stock WHERE id = $1)",
		ticketID,
	).Scan(&exists)
	if err != nil {
		return classifyPostgresError(err)
	}
	if !exists {
		return ledger.ErrTicketNotFound
	}
	return ledger.ErrInsufficientStock
}

// Remaining implements ledger.Store.
func (s *PostgresLedgerStore) Remaining(ctx context.Context, ticketID string) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx,
		"SELECT quantity_available - quantity_sold FROM ticket_stock WHERE id = $1",
		ticketID,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrTicketNotFound
	}
	if err != nil {
		return 0, classifyPostgresError(err)
	}
	return remaining, nil
}

// ListPurchases implements ledger.Store.
func (s *PostgresLedgerStore) ListPurchases(ctx context.Context, userID string) ([]ledger.PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, ticket_id, quantity, total_price, purchase_time
		 FROM purchases
		 WHERE user_id = $1
		 ORDER BY purchase_time DESC, seq DESC`,
		userID,
	)
	if err != nil {
		return nil, classifyPostgresError(err)
	}
	defer rows.Close()

	records := make([]ledger.PurchaseRecord, 0)
	for rows.Next() {
		var r ledger.PurchaseRecord
		if err := rows.Scan(&r.PurchaseID, &r.UserID, &r.TicketID, &r.Quantity, &r.TotalPrice, &r.PurchaseTime); err != nil {
			return nil, classifyPostgresError(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgresError(err)
	}
	return records, nil
}

// Aggregate implements ledger.Store.
func (s *PostgresLedgerStore) Aggregate(ctx context.Context) (ledger.Summary, error) {
	var summary ledger.Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COALESCE(SUM(quantity), 0) FROM purchases),
			(SELECT COALESCE(SUM(total_price), 0) FROM purchases),
			(SELECT COUNT(*) FROM events)`,
	).Scan(&summary.TotalTicketsSold, &summary.TotalSales, &summary.NumberOfEvents)
	if err != nil {
		return ledger.Summary{}, classifyPostgresError(err)
	}
	return summary, nil
}
