package query

import (
	"time"

	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
)

type RemainingReadModel struct {
	TicketID  string `json:"ticket_id"`
	Remaining int    `json:"remaining"`
	SoldOut   bool   `json:"sold_out"`
}

type TicketReadModel struct {
	TicketID          string `json:"ticket_id"`
	EventID           string `json:"event_id"`
	TicketType        string `json:"ticket_type"`
	Price             int64  `json:"price"`
	QuantityAvailable int    `json:"quantity_available"`
	QuantitySold      int    `json:"quantity_sold"`
	Remaining         int    `json:"remaining"`
	SoldOut           bool   `json:"sold_out"`
}

type EventReadModel struct {
	ID          string            `json:"id"`
	OrganizerID string            `json:"organizer_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Location    string            `json:"location"`
	StartsAt    time.Time         `json:"starts_at"`
	CreatedAt   time.Time         `json:"created_at"`
	Tickets     []TicketReadModel `json:"tickets,omitempty"`
}

type PurchaseHistoryReadModel struct {
	UserID    string                  `json:"user_id"`
	Purchases []ledger.PurchaseRecord `json:"purchases"`
}

func newTicketReadModel(t ledger.TicketStock) TicketReadModel {
	return TicketReadModel{
		TicketID:          t.TicketID,
		EventID:           t.EventID,
		TicketType:        t.TicketType,
		Price:             t.Price,
		QuantityAvailable: t.QuantityAvailable,
		QuantitySold:      t.QuantitySold,
		Remaining:         t.Remaining(),
		SoldOut:           t.SoldOut(),
	}
}

func newEventReadModel(e catalog.Event) EventReadModel {
	return EventReadModel{
		ID:          e.ID,
		OrganizerID: e.OrganizerID,
		Name:        e.Name,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    e.StartsAt,
		CreatedAt:   e.CreatedAt,
	}
}
