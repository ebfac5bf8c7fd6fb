package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const EventTicketsPurchased = "TicketsPurchased"

// TicketsPurchased is published after a purchase commits.
type TicketsPurchased struct {
	PurchaseID        string    `json:"purchase_id"`
	UserID            string    `json:"user_id"`
	TicketID          string    `json:"ticket_id"`
	Quantity          int       `json:"quantity"`
	TotalPrice        int64     `json:"total_price"`
	QuantityRemaining int       `json:"quantity_remaining"`
	PurchasedAt       time.Time `json:"purchased_at"`
}

// Envelope wraps a ledger event on the wire.
type Envelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	TicketID  string          `json:"ticket_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals data and wraps it with a fresh event id.
func NewEnvelope(eventType, ticketID string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        uuid.New().String(),
		EventType: eventType,
		TicketID:  ticketID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}
