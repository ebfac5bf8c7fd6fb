package command

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
	"go.uber.org/zap"
)

// Default retry policy for purchases that hit a busy ticket.
const (
	DefaultRetryInitialInterval = 20 * time.Millisecond
	DefaultRetryMaxElapsed      = time.Second
)

type Handler struct {
	ledgerSvc  *ledger.Service
	catalogSvc *catalog.Service
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

func NewHandler(ledgerSvc *ledger.Service, catalogSvc *catalog.Service, logger *zap.Logger) *Handler {
	return &Handler{
		ledgerSvc:  ledgerSvc,
		catalogSvc: catalogSvc,
		logger:     logger.Named("command"),
		newBackOff: func() backoff.BackOff {
			return newExponentialBackOff(DefaultRetryInitialInterval, DefaultRetryMaxElapsed)
		},
	}
}

// SetRetryPolicy replaces the purchase retry policy. A zero maxElapsed
// disables retries.
func (h *Handler) SetRetryPolicy(initial, maxElapsed time.Duration) {
	if maxElapsed <= 0 {
		h.newBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
		return
	}
	h.newBackOff = func() backoff.BackOff {
		return newExponentialBackOff(initial, maxElapsed)
	}
}

func newExponentialBackOff(initial, maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxElapsedTime = maxElapsed
	b.Reset()
	return b
}

// PurchaseTickets buys tickets, retrying only while the ledger reports a
// transient conflict. Every other outcome is returned as is.
func (h *Handler) PurchaseTickets(ctx context.Context, cmd PurchaseTickets) (*ledger.PurchaseRecord, error) {
	var record *ledger.PurchaseRecord

	op := func() error {
		r, err := h.ledgerSvc.PurchaseTickets(ctx, cmd.UserID, cmd.TicketID, cmd.Quantity)
		if err != nil {
			if ledger.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		record = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		h.logger.Debug("retrying purchase",
			zap.String("ticket_id", cmd.TicketID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(h.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return record, nil
}

// CreateEvent creates a catalog event owned by the organizer
func (h *Handler) CreateEvent(ctx context.Context, cmd CreateEvent) (*catalog.Event, error) {
	return h.catalogSvc.CreateEvent(ctx, cmd.OrganizerID, cmd.Name, cmd.Description, cmd.Location, cmd.StartsAt)
}

// CreateTicket allocates a ticket type under an event
func (h *Handler) CreateTicket(ctx context.Context, cmd CreateTicket) (*ledger.TicketStock, error) {
	t, err := h.catalogSvc.CreateTicket(ctx, cmd.OrganizerID, cmd.EventID, cmd.TicketType, cmd.Price, cmd.QuantityAvailable)
	if err != nil {
		return nil, err
	}
	h.logger.Info("ticket type created",
		zap.String("ticket_id", t.TicketID),
		zap.String("event_id", t.EventID),
		zap.Int("quantity_available", t.QuantityAvailable),
	)
	return t, nil
}

// UpdateTicketPrice changes the price for future purchases
func (h *Handler) UpdateTicketPrice(ctx context.Context, cmd UpdateTicketPrice) error {
	return h.catalogSvc.UpdateTicketPrice(ctx, cmd.OrganizerID, cmd.TicketID, cmd.Price)
}

// UpdateTicketQuantity resizes an allocation. The local snapshot is dropped
// because remaining stock may have grown.
func (h *Handler) UpdateTicketQuantity(ctx context.Context, cmd UpdateTicketQuantity) error {
	if err := h.catalogSvc.UpdateTicketQuantity(ctx, cmd.OrganizerID, cmd.TicketID, cmd.QuantityAvailable); err != nil {
		return err
	}
	h.ledgerSvc.Snapshot().Invalidate(cmd.TicketID)
	h.logger.Info("ticket quantity updated",
		zap.String("ticket_id", cmd.TicketID),
		zap.Int("quantity_available", cmd.QuantityAvailable),
	)
	return nil
}
