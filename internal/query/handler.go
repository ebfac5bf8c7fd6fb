package query

import (
	"context"

	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
	"go.uber.org/zap"
)

type Handler struct {
	ledgerSvc  *ledger.Service
	catalogSvc *catalog.Service
	logger     *zap.Logger
}

func NewHandler(ledgerSvc *ledger.Service, catalogSvc *catalog.Service, logger *zap.Logger) *Handler {
	return &Handler{ledgerSvc: ledgerSvc, catalogSvc: catalogSvc, logger: logger.Named("query")}
}

// Remaining stock, possibly served from the snapshot
func (h *Handler) GetRemaining(ctx context.Context, ticketID string) (*RemainingReadModel, error) {
	remaining, err := h.ledgerSvc.GetRemaining(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return &RemainingReadModel{
		TicketID:  ticketID,
		Remaining: remaining,
		SoldOut:   remaining == 0,
	}, nil
}

// Purchase history, most recent first
func (h *Handler) ListPurchases(ctx context.Context, userID string) (*PurchaseHistoryReadModel, error) {
	records, err := h.ledgerSvc.ListPurchases(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &PurchaseHistoryReadModel{UserID: userID, Purchases: records}, nil
}

// Analytics
func (h *Handler) Analytics(ctx context.Context) (ledger.Summary, error) {
	return h.ledgerSvc.Aggregate(ctx)
}

// Events
func (h *Handler) ListEvents(ctx context.Context) ([]EventReadModel, error) {
	events, err := h.catalogSvc.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]EventReadModel, 0, len(events))
	for _, e := range events {
		result = append(result, newEventReadModel(e))
	}
	return result, nil
}

// GetEvent returns the event with its ticket types. Remaining counts come
// from the stock rows read here. Those rows may come from a lagging index, so
// they can only lower the snapshot, never raise it.
func (h *Handler) GetEvent(ctx context.Context, eventID string) (*EventReadModel, error) {
	e, tickets, err := h.catalogSvc.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	result := newEventReadModel(*e)
	result.Tickets = make([]TicketReadModel, 0, len(tickets))
	snapshot := h.ledgerSvc.Snapshot()
	for _, t := range tickets {
		rm := newTicketReadModel(t)
		snapshot.Observe(t.TicketID, rm.Remaining)
		result.Tickets = append(result.Tickets, rm)
	}

	h.logger.Debug("event read", zap.String("event_id", eventID), zap.Int("ticket_types", len(tickets)))
	return &result, nil
}
