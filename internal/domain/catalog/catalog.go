package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/event-ticketing/internal/domain/ledger"
	"github.com/google/uuid"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrNotOwner          = errors.New("event belongs to another organizer")
	ErrInvalidName       = errors.New("event name is required")
	ErrInvalidTicketType = errors.New("ticket type is required")
	ErrInvalidPrice      = errors.New("price must not be negative")
	ErrInvalidQuantity   = errors.New("quantity available must not be negative")
	ErrQuantityBelowSold = errors.New("quantity available must not drop below quantity sold")
)

// Event is a catalog entry created by an organizer.
type Event struct {
	ID          string    `json:"id"`
	OrganizerID string    `json:"organizer_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists events and the ticket stock rows that belong to them.
type Store interface {
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	CreateTicket(ctx context.Context, t *ledger.TicketStock) error
	GetTicket(ctx context.Context, id string) (*ledger.TicketStock, error)
	ListTickets(ctx context.Context, eventID string) ([]ledger.TicketStock, error)
	UpdateTicketPrice(ctx context.Context, ticketID string, price int64) error
	// UpdateTicketQuantity sets quantity_available atomically with respect to
	// purchases and fails with ErrQuantityBelowSold rather than undercut sales.
	UpdateTicketQuantity(ctx context.Context, ticketID string, quantityAvailable int) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) CreateEvent(ctx context.Context, organizerID, name, description, location string, startsAt time.Time) (*Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	now := s.now().UTC()
	e := &Event{
		ID:          uuid.New().String(),
		OrganizerID: organizerID,
		Name:        name,
		Description: description,
		Location:    location,
		StartsAt:    startsAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateTicket allocates a new ticket type for an event owned by organizerID.
func (s *Service) CreateTicket(ctx context.Context, organizerID, eventID, ticketType string, price int64, quantity int) (*ledger.TicketStock, error) {
	ticketType = strings.TrimSpace(ticketType)
	if ticketType == "" {
		return nil, ErrInvalidTicketType
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	if _, err := s.ownedEvent(ctx, organizerID, eventID); err != nil {
		return nil, err
	}

	t := &ledger.TicketStock{
		TicketID:          uuid.New().String(),
		EventID:           eventID,
		TicketType:        ticketType,
		Price:             price,
		QuantityAvailable: quantity,
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTicketPrice changes the price for future purchases. Purchase records
// already written keep the total they were created with.
func (s *Service) UpdateTicketPrice(ctx context.Context, organizerID, ticketID string, price int64) error {
	if price < 0 {
		return ErrInvalidPrice
	}

	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if _, err := s.ownedEvent(ctx, organizerID, t.EventID); err != nil {
		return err
	}
	return s.store.UpdateTicketPrice(ctx, ticketID, price)
}

// UpdateTicketQuantity resizes a ticket allocation. It never goes below the
// units already sold.
func (s *Service) UpdateTicketQuantity(ctx context.Context, organizerID, ticketID string, quantityAvailable int) error {
	if quantityAvailable < 0 {
		return ErrInvalidQuantity
	}

	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if _, err := s.ownedEvent(ctx, organizerID, t.EventID); err != nil {
		return err
	}
	return s.store.UpdateTicketQuantity(ctx, ticketID, quantityAvailable)
}

func (s *Service) GetEvent(ctx context.Context, id string) (*Event, []ledger.TicketStock, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	tickets, err := s.store.ListTickets(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return e, tickets, nil
}

func (s *Service) ListEvents(ctx context.Context) ([]Event, error) {
	return s.store.ListEvents(ctx)
}

func (s *Service) GetTicket(ctx context.Context, id string) (*ledger.TicketStock, error) {
	return s.store.GetTicket(ctx, id)
}

func (s *Service) ownedEvent(ctx context.Context, organizerID, eventID string) (*Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.OrganizerID != organizerID {
		return nil, ErrNotOwner
	}
	return e, nil
}
