package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
)

// DefaultLockTimeout bounds how long a purchase waits for a busy ticket.
const DefaultLockTimeout = 2 * time.Second

// MemoryStore keeps the catalog and the ledger in process memory.
// Purchases of the same ticket are serialized by a per-ticket lock; purchases
// of different tickets never wait on each other.
type MemoryStore struct {
	mu          sync.RWMutex
	events      map[string]catalog.Event
	tickets     map[string]*memoryTicket
	lockTimeout time.Duration

	purchasesMu sync.RWMutex
	purchases   []ledger.PurchaseRecord
}

type memoryTicket struct {
	sem   chan struct{} // held for the whole check-and-increment
	mu    sync.RWMutex  // guards stock for readers
	stock ledger.TicketStock
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &MemoryStore{
		events:      make(map[string]catalog.Event),
		tickets:     make(map[string]*memoryTicket),
		lockTimeout: lockTimeout,
	}
}

func (t *memoryTicket) acquire(ctx context.Context, timeout time.Duration) error {
	select {
	case t.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: lock wait exceeded %s", ledger.ErrTransientConflict, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ledger.ErrTransientConflict, ctx.Err())
	}
}

func (t *memoryTicket) release() {
	<-t.sem
}

func (s *MemoryStore) ticket(id string) (*memoryTicket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	return t, ok
}

// Purchase implements ledger.Store.
func (s *MemoryStore) Purchase(ctx context.Context, req ledger.PurchaseRequest) (ledger.PurchaseRecord, int, error) {
	if req.Quantity <= 0 {
		return ledger.PurchaseRecord{}, 0, ledger.ErrInvalidQuantity
	}

	t, ok := s.ticket(req.TicketID)
	if !ok {
		return ledger.PurchaseRecord{}, 0, ledger.ErrTicketNotFound
	}

	if err := t.acquire(ctx, s.lockTimeout); err != nil {
		return ledger.PurchaseRecord{}, 0, err
	}
	defer t.release()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.stock.CanSell(req.Quantity) {
		return ledger.PurchaseRecord{}, 0, ledger.ErrInsufficientStock
	}

	record := ledger.PurchaseRecord{
		PurchaseID:   req.PurchaseID,
		UserID:       req.UserID,
		TicketID:     req.TicketID,
		Quantity:     req.Quantity,
		TotalPrice:   t.stock.Price * int64(req.Quantity),
		PurchaseTime: req.PurchasedAt,
	}

	// Stock and record become visible together.
	s.purchasesMu.Lock()
	t.stock.QuantitySold += req.Quantity
	s.purchases = append(s.purchases, record)
	s.purchasesMu.Unlock()

	return record, t.stock.Remaining(), nil
}

// Remaining implements ledger.Store.
func (s *MemoryStore) Remaining(ctx context.Context, ticketID string) (int, error) {
	t, ok := s.ticket(ticketID)
	if !ok {
		return 0, ledger.ErrTicketNotFound
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stock.Remaining(), nil
}

// ListPurchases implements ledger.Store.
func (s *MemoryStore) ListPurchases(ctx context.Context, userID string) ([]ledger.PurchaseRecord, error) {
	s.purchasesMu.RLock()
	defer s.purchasesMu.RUnlock()

	records := make([]ledger.PurchaseRecord, 0)
	for i := len(s.purchases) - 1; i >= 0; i-- {
		if s.purchases[i].UserID == userID {
			records = append(records, s.purchases[i])
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PurchaseTime.After(records[j].PurchaseTime)
	})
	return records, nil
}

// Aggregate implements ledger.Store.
func (s *MemoryStore) Aggregate(ctx context.Context) (ledger.Summary, error) {
	var summary ledger.Summary

	s.purchasesMu.RLock()
	for _, p := range s.purchases {
		summary.TotalTicketsSold += int64(p.Quantity)
		summary.TotalSales += p.TotalPrice
	}
	s.purchasesMu.RUnlock()

	s.mu.RLock()
	summary.NumberOfEvents = int64(len(s.events))
	s.mu.RUnlock()

	return summary, nil
}

// CreateEvent implements catalog.Store.
func (s *MemoryStore) CreateEvent(ctx context.Context, e *catalog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = *e
	return nil
}

// GetEvent implements catalog.Store.
func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*catalog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, catalog.ErrEventNotFound
	}
	return &e, nil
}

// ListEvents implements catalog.Store.
func (s *MemoryStore) ListEvents(ctx context.Context) ([]catalog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]catalog.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	return events, nil
}

// CreateTicket implements catalog.Store.
func (s *MemoryStore) CreateTicket(ctx context.Context, t *ledger.TicketStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[t.EventID]; !ok {
		return catalog.ErrEventNotFound
	}
	s.tickets[t.TicketID] = &memoryTicket{
		sem:   make(chan struct{}, 1),
		stock: *t,
	}
	return nil
}

// GetTicket implements catalog.Store.
func (s *MemoryStore) GetTicket(ctx context.Context, id string) (*ledger.TicketStock, error) {
	t, ok := s.ticket(id)
	if !ok {
		return nil, catalog.ErrTicketNotFound
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	stock := t.stock
	return &stock, nil
}

// ListTickets implements catalog.Store.
func (s *MemoryStore) ListTickets(ctx context.Context, eventID string) ([]ledger.TicketStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]ledger.TicketStock, 0)
	for _, t := range s.tickets {
		t.mu.RLock()
		if t.stock.EventID == eventID {
			tickets = append(tickets, t.stock)
		}
		t.mu.RUnlock()
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].TicketType < tickets[j].TicketType
	})
	return tickets, nil
}

// UpdateTicketPrice implements catalog.Store.
func (s *MemoryStore) UpdateTicketPrice(ctx context.Context, ticketID string, price int64) error {
	t, ok := s.ticket(ticketID)
	if !ok {
		return catalog.ErrTicketNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stock.Price = price
	return nil
}

// UpdateTicketQuantity implements catalog.Store. Holding the ticket mutex keeps
// the check and the write inside the same critical section as Purchase.
func (s *MemoryStore) UpdateTicketQuantity(ctx context.Context, ticketID string, quantityAvailable int) error {
	t, ok := s.ticket(ticketID)
	if !ok {
		return catalog.ErrTicketNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if quantityAvailable < t.stock.QuantitySold {
		return catalog.ErrQuantityBelowSold
	}
	t.stock.QuantityAvailable = quantityAvailable
	return nil
}
