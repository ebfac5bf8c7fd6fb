package ledger

import (
	"context"
	"time"
)

// TicketStock tracks how many units of one ticket type were allocated and sold.
// Only QuantitySold changes after creation, and only through Store.Purchase.
type TicketStock struct {
	TicketID          string `json:"ticket_id"`
	EventID           string `json:"event_id"`
	TicketType        string `json:"ticket_type"`
	Price             int64  `json:"price"`
	QuantityAvailable int    `json:"quantity_available"`
	QuantitySold      int    `json:"quantity_sold"`
}

// Remaining returns the units still for sale. It is never negative.
func (t *TicketStock) Remaining() int {
	if t.QuantitySold >= t.QuantityAvailable {
		return 0
	}
	return t.QuantityAvailable - t.QuantitySold
}

// CanSell reports whether quantity units fit in the remaining stock.
func (t *TicketStock) CanSell(quantity int) bool {
	return quantity > 0 && quantity <= t.Remaining()
}

// SoldOut reports whether the ticket reached its terminal state.
func (t *TicketStock) SoldOut() bool {
	return t.QuantitySold >= t.QuantityAvailable
}

// PurchaseRecord is the immutable audit entry written for every accepted purchase.
type PurchaseRecord struct {
	PurchaseID   string    `json:"purchase_id"`
	UserID       string    `json:"user_id"`
	TicketID     string    `json:"ticket_id"`
	Quantity     int       `json:"quantity"`
	TotalPrice   int64     `json:"total_price"`
	PurchaseTime time.Time `json:"purchase_time"`
}

// Summary is the analytics aggregate over all purchase records.
type Summary struct {
	TotalTicketsSold int64 `json:"total_tickets_sold"`
	TotalSales       int64 `json:"total_sales"`
	NumberOfEvents   int64 `json:"number_of_events"`
}

// PurchaseRequest carries everything a store needs to commit one purchase.
// PurchaseID and PurchasedAt are assigned by the Service before the store is called.
type PurchaseRequest struct {
	PurchaseID  string
	UserID      string
	TicketID    string
	Quantity    int
	PurchasedAt time.Time
}

// Store is the authoritative persistence for ticket stock and purchase records.
//
// Purchase must check quantity against the remaining stock and increment
// quantity_sold in one indivisible step, insert the record in the same
// transaction, and return the remaining stock after the commit. Failures are
// reported with the sentinel errors of this package.
type Store interface {
	Purchase(ctx context.Context, req PurchaseRequest) (PurchaseRecord, int, error)
	Remaining(ctx context.Context, ticketID string) (int, error)
	ListPurchases(ctx context.Context, userID string) ([]PurchaseRecord, error)
	Aggregate(ctx context.Context) (Summary, error)
}

// Publisher delivers ledger events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
