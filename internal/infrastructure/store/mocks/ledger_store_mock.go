package mocks

import (
	"context"
	"sync"

	"github.com/example/event-ticketing/internal/domain/ledger"
)

// MockLedgerStore is a mock implementation of ledger.Store for testing
type MockLedgerStore struct {
	mu        sync.Mutex
	stock     map[string]*ledger.TicketStock
	purchases []ledger.PurchaseRecord
	events    int64

	// For tracking calls in tests
	PurchaseCalls    []ledger.PurchaseRequest
	RemainingCalls   []string
	PurchaseErr      error
	RemainingErr     error
	ListErr          error
	AggregateErr     error
	PurchaseCallback func(ctx context.Context, req ledger.PurchaseRequest) (ledger.PurchaseRecord, int, error)
}

// NewMockLedgerStore creates a new MockLedgerStore
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		stock: make(map[string]*ledger.TicketStock),
	}
}

// SetStock registers a ticket with its allocation
func (m *MockLedgerStore) SetStock(t ledger.TicketStock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[t.TicketID] = &t
}

// SetEventCount sets the number_of_events reported by Aggregate
func (m *MockLedgerStore) SetEventCount(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = n
}

// Stock returns a copy of the current stock for a ticket
func (m *MockLedgerStore) Stock(ticketID string) (ledger.TicketStock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.stock[ticketID]
	if !ok {
		return ledger.TicketStock{}, false
	}
	return *t, true
}

// Purchase records the call and applies it to the in-memory stock
func (m *MockLedgerStore) Purchase(ctx context.Context, req ledger.PurchaseRequest) (ledger.PurchaseRecord, int, error) {
	m.mu.Lock()
	m.PurchaseCalls = append(m.PurchaseCalls, req)
	callback := m.PurchaseCallback
	m.mu.Unlock()

	if callback != nil {
		return callback(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PurchaseErr != nil {
		return ledger.PurchaseRecord{}, 0, m.PurchaseErr
	}

	t, ok := m.stock[req.TicketID]
	if !ok {
		return ledger.PurchaseRecord{}, 0, ledger.ErrTicketNotFound
	}
	if !t.CanSell(req.Quantity) {
		return ledger.PurchaseRecord{}, 0, ledger.ErrInsufficientStock
	}

	t.QuantitySold += req.Quantity
	record := ledger.PurchaseRecord{
		PurchaseID:   req.PurchaseID,
		UserID:       req.UserID,
		TicketID:     req.TicketID,
		Quantity:     req.Quantity,
		TotalPrice:   t.Price * int64(req.Quantity),
		PurchaseTime: req.PurchasedAt,
	}
	m.purchases = append(m.purchases, record)
	return record, t.Remaining(), nil
}

// Remaining returns the remaining stock for a ticket
func (m *MockLedgerStore) Remaining(ctx context.Context, ticketID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RemainingCalls = append(m.RemainingCalls, ticketID)
	if m.RemainingErr != nil {
		return 0, m.RemainingErr
	}
	t, ok := m.stock[ticketID]
	if !ok {
		return 0, ledger.ErrTicketNotFound
	}
	return t.Remaining(), nil
}

// ListPurchases returns purchases for a user, most recent first
func (m *MockLedgerStore) ListPurchases(ctx context.Context, userID string) ([]ledger.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var records []ledger.PurchaseRecord
	for i := len(m.purchases) - 1; i >= 0; i-- {
		if m.purchases[i].UserID == userID {
			records = append(records, m.purchases[i])
		}
	}
	return records, nil
}

// Aggregate sums recorded purchases
func (m *MockLedgerStore) Aggregate(ctx context.Context) (ledger.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AggregateErr != nil {
		return ledger.Summary{}, m.AggregateErr
	}
	summary := ledger.Summary{NumberOfEvents: m.events}
	for _, p := range m.purchases {
		summary.TotalTicketsSold += int64(p.Quantity)
		summary.TotalSales += p.TotalPrice
	}
	return summary, nil
}

// Reset clears all state and recorded calls
func (m *MockLedgerStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock = make(map[string]*ledger.TicketStock)
	m.purchases = nil
	m.events = 0
	m.PurchaseCalls = nil
	m.RemainingCalls = nil
	m.PurchaseErr = nil
	m.RemainingErr = nil
	m.ListErr = nil
	m.AggregateErr = nil
	m.PurchaseCallback = nil
}

// Ensure MockLedgerStore implements ledger.Store
var _ ledger.Store = (*MockLedgerStore)(nil)
