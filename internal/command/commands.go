package command

import "time"

// Ledger Commands
type PurchaseTickets struct {
	UserID   string `json:"user_id"`
	TicketID string `json:"ticket_id"`
	Quantity int    `json:"quantity"`
}

// Catalog Commands
type CreateEvent struct {
	OrganizerID string    `json:"organizer_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
}

type CreateTicket struct {
	OrganizerID       string `json:"organizer_id"`
	EventID           string `json:"event_id"`
	TicketType        string `json:"ticket_type"`
	Price             int64  `json:"price"`
	QuantityAvailable int    `json:"quantity_available"`
}

type UpdateTicketPrice struct {
	OrganizerID string `json:"organizer_id"`
	TicketID    string `json:"ticket_id"`
	Price       int64  `json:"price"`
}

type UpdateTicketQuantity struct {
	OrganizerID       string `json:"organizer_id"`
	TicketID          string `json:"ticket_id"`
	QuantityAvailable int    `json:"quantity_available"`
}
