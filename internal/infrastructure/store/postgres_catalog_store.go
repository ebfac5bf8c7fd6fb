package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
	"github.com/lib/pq"
)

// PostgresCatalogStore implements catalog.Store on PostgreSQL.
type PostgresCatalogStore struct {
	db *sql.DB
}

func NewPostgresCatalogStore(db *sql.DB) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db}
}

// CreateEvent implements catalog.Store.
func (s *PostgresCatalogStore) CreateEvent(ctx context.Context, e *catalog.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, organizer_id, name, description, location, starts_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.OrganizerID, e.Name, e.Description, e.Location, e.StartsAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent implements catalog.Store.
func (s *PostgresCatalogStore) GetEvent(ctx context.Context, id string) (*catalog.Event, error) {
	var e catalog.Event
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organizer_id, name, description, location, starts_at, created_at, updated_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.Location, &e.StartsAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

// ListEvents implements catalog.Store.
func (s *PostgresCatalogStore) ListEvents(ctx context.Context) ([]catalog.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organizer_id, name, description, location, starts_at, created_at, updated_at
		 FROM events
		 ORDER BY starts_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]catalog.Event, 0)
	for rows.Next() {
		var e catalog.Event
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.Location, &e.StartsAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateTicket implements catalog.Store.
func (s *PostgresCatalogStore) CreateTicket(ctx context.Context, t *ledger.TicketStock) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_stock (id, event_id, ticket_type, price, quantity_available, quantity_sold)
		 VALUES ($1, $2, $3, $4, $5, 0)`,
		t.TicketID, t.EventID, t.TicketType, t.Price, t.QuantityAvailable,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return catalog.ErrEventNotFound
		}
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

// GetTicket implements catalog.Store.
func (s *PostgresCatalogStore) GetTicket(ctx context.Context, id string) (*ledger.TicketStock, error) {
	var t ledger.TicketStock
	err := s.db.QueryRowContext(ctx,
		`SELECT id, event_id, ticket_type, price, quantity_available, quantity_sold
		 FROM ticket_stock WHERE id = $1`,
		id,
	).Scan(&t.TicketID, &t.EventID, &t.TicketType, &t.Price, &t.QuantityAvailable, &t.QuantitySold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &t, nil
}

// ListTickets implements catalog.Store.
func (s *PostgresCatalogStore) ListTickets(ctx context.Context, eventID string) ([]ledger.TicketStock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, ticket_type, price, quantity_available, quantity_sold
		 FROM ticket_stock
		 WHERE event_id = $1
		 ORDER BY ticket_type ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]ledger.TicketStock, 0)
	for rows.Next() {
		var t ledger.TicketStock
		if err := rows.Scan(&t.TicketID, &t.EventID, &t.TicketType, &t.Price, &t.QuantityAvailable, &t.QuantitySold); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// UpdateTicketPrice implements catalog.Store.
func (s *PostgresCatalogStore) UpdateTicketPrice(ctx context.Context, ticketID string, price int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE ticket_stock SET price = $1 WHERE id = $2",
		price, ticketID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket price: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update ticket price: %w", err)
	}
	if n == 0 {
		return catalog.ErrTicketNotFound
	}
	return nil
}

// UpdateTicketQuantity implements catalog.Store. The row lock taken by the
// update orders it against concurrent purchases.
func (s *PostgresCatalogStore) UpdateTicketQuantity(ctx context.Context, ticketID string, quantityAvailable int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE ticket_stock SET quantity_available = $1 WHERE id = $2 AND quantity_sold <= $1",
		quantityAvailable, ticketID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket quantity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update ticket quantity: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM ticket_stock WHERE id = $1)",
		ticketID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check ticket: %w", err)
	}
	if !exists {
		return catalog.ErrTicketNotFound
	}
	return catalog.ErrQuantityBelowSold
}
