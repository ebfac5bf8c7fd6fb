package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
	"github.com/example/event-ticketing/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*catalog.Service, *store.MemoryStore) {
	st := store.NewMemoryStore(time.Second)
	return catalog.NewService(st), st
}

var startsAt = time.Date(2026, 11, 20, 19, 0, 0, 0, time.UTC)

// ============================================
// CreateEvent Tests
// ============================================

func TestService_CreateEvent_Success(t *testing.T) {
	svc, _ := newTestService()

	e, err := svc.CreateEvent(context.Background(), "org-1", "  Jazz Night ", "Live", "Hall A", startsAt)

	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "Jazz Night", e.Name)
	assert.Equal(t, "org-1", e.OrganizerID)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestService_CreateEvent_InvalidName(t *testing.T) {
	svc, _ := newTestService()

	e, err := svc.CreateEvent(context.Background(), "org-1", "   ", "", "", startsAt)

	assert.ErrorIs(t, err, catalog.ErrInvalidName)
	assert.Nil(t, e)
}

// ============================================
// CreateTicket Tests
// ============================================

func TestService_CreateTicket_Success(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, "org-1", "Concert", "", "", startsAt)
	require.NoError(t, err)

	ticket, err := svc.CreateTicket(ctx, "org-1", e.ID, "VIP", 5000, 100)

	require.NoError(t, err)
	assert.NotEmpty(t, ticket.TicketID)
	assert.Equal(t, 0, ticket.QuantitySold)
	assert.Equal(t, 100, ticket.Remaining())

	_, tickets, err := svc.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "VIP", tickets[0].TicketType)
}

func TestService_CreateTicket_ZeroQuantityIsSoldOut(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, "org-1", "Concert", "", "", startsAt)
	require.NoError(t, err)

	ticket, err := svc.CreateTicket(ctx, "org-1", e.ID, "Comp", 0, 0)

	require.NoError(t, err)
	assert.True(t, ticket.SoldOut())
}

func TestService_CreateTicket_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, "org-1", "Concert", "", "", startsAt)
	require.NoError(t, err)

	tests := []struct {
		name       string
		ticketType string
		price      int64
		quantity   int
		want       error
	}{
		{"empty type", " ", 100, 1, catalog.ErrInvalidTicketType},
		{"negative price", "GA", -1, 1, catalog.ErrInvalidPrice},
		{"negative quantity", "GA", 100, -1, catalog.ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTicket(ctx, "org-1", e.ID, tt.ticketType, tt.price, tt.quantity)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_CreateTicket_NotOwner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, "org-1", "Concert", "", "", startsAt)
	require.NoError(t, err)

	_, err = svc.CreateTicket(ctx, "org-2", e.ID, "GA", 100, 10)

	assert.ErrorIs(t, err, catalog.ErrNotOwner)
}

func TestService_CreateTicket_EventNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateTicket(context.Background(), "org-1", "missing", "GA", 100, 10)

	assert.ErrorIs(t, err, catalog.ErrEventNotFound)
}

// ============================================
// UpdateTicketPrice Tests
// ============================================

func TestService_UpdateTicketPrice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, "org-1", "Concert", "", "", startsAt)
	require.NoError(t, err)
	ticket, err := svc.CreateTicket(ctx, "org-1", e.ID, "GA", 1000, 10)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTicketPrice(ctx, "org-1", ticket.TicketID, 1500))

	got, err := svc.GetTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.Price)
}

func TestService_UpdateTicketPrice_Rejections(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, "org-1", "Concert", "", "", startsAt)
	require.NoError(t, err)
	ticket, err := svc.CreateTicket(ctx, "org-1", e.ID, "GA", 1000, 10)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.UpdateTicketPrice(ctx, "org-2", ticket.TicketID, 1500), catalog.ErrNotOwner)
	assert.ErrorIs(t, svc.UpdateTicketPrice(ctx, "org-1", ticket.TicketID, -5), catalog.ErrInvalidPrice)
	assert.ErrorIs(t, svc.UpdateTicketPrice(ctx, "org-1", "missing", 5), catalog.ErrTicketNotFound)
}

// ============================================
// UpdateTicketQuantity Tests
// ============================================

func TestService_UpdateTicketQuantity(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, "org-1", "Concert", "", "", startsAt)
	require.NoError(t, err)
	ticket, err := svc.CreateTicket(ctx, "org-1", e.ID, "GA", 1000, 10)
	require.NoError(t, err)
	_, _, err = st.Purchase(ctx, ledger.PurchaseRequest{PurchaseID: "p-1", UserID: "user-1", TicketID: ticket.TicketID, Quantity: 4, PurchasedAt: startsAt})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTicketQuantity(ctx, "org-1", ticket.TicketID, 4))

	got, err := svc.GetTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.QuantityAvailable)
	assert.True(t, got.SoldOut())
}

func TestService_UpdateTicketQuantity_Rejections(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, "org-1", "Concert", "", "", startsAt)
	require.NoError(t, err)
	ticket, err := svc.CreateTicket(ctx, "org-1", e.ID, "GA", 1000, 10)
	require.NoError(t, err)
	_, _, err = st.Purchase(ctx, ledger.PurchaseRequest{PurchaseID: "p-1", UserID: "user-1", TicketID: ticket.TicketID, Quantity: 4, PurchasedAt: startsAt})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.UpdateTicketQuantity(ctx, "org-1", ticket.TicketID, 3), catalog.ErrQuantityBelowSold)
	assert.ErrorIs(t, svc.UpdateTicketQuantity(ctx, "org-1", ticket.TicketID, -1), catalog.ErrInvalidQuantity)
	assert.ErrorIs(t, svc.UpdateTicketQuantity(ctx, "org-2", ticket.TicketID, 20), catalog.ErrNotOwner)
	assert.ErrorIs(t, svc.UpdateTicketQuantity(ctx, "org-1", "missing", 20), catalog.ErrTicketNotFound)

	got, err := svc.GetTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.QuantityAvailable)
}

// ============================================
// Listing Tests
// ============================================

func TestService_ListEvents_OrderedByStart(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	later, err := svc.CreateEvent(ctx, "org-1", "Later", "", "", startsAt.Add(24*time.Hour))
	require.NoError(t, err)
	sooner, err := svc.CreateEvent(ctx, "org-1", "Sooner", "", "", startsAt)
	require.NoError(t, err)

	events, err := svc.ListEvents(ctx)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, sooner.ID, events[0].ID)
	assert.Equal(t, later.ID, events[1].ID)
}

func TestService_GetEvent_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, _, err := svc.GetEvent(context.Background(), "missing")

	assert.ErrorIs(t, err, catalog.ErrEventNotFound)
}
