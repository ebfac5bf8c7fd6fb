package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/example/event-ticketing/internal/domain/ledger"

// Service is the inventory ledger. It owns ticket stock counters and purchase
// records and is the only writer of quantity_sold.
type Service struct {
	store     Store
	publisher Publisher
	snapshot  *SnapshotCache
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Service)

// WithPublisher publishes TicketsPurchased after every committed purchase.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithSnapshot(c *SnapshotCache) Option {
	return func(s *Service) { s.snapshot = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l.Named("ledger") }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the remaining-stock cache used for display reads.
func (s *Service) Snapshot() *SnapshotCache {
	return s.snapshot
}

// PurchaseTickets commits a purchase of quantity units of ticketID for userID.
// Either the stock increment and the purchase record are both written or
// nothing is.
func (s *Service) PurchaseTickets(ctx context.Context, userID, ticketID string, quantity int) (*PurchaseRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.PurchaseTickets")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket.id", ticketID),
		attribute.Int("purchase.quantity", quantity),
	)

	if quantity <= 0 {
		return nil, s.fail(span, ErrInvalidQuantity)
	}
	if ticketID == "" {
		return nil, s.fail(span, ErrTicketNotFound)
	}

	req := PurchaseRequest{
		PurchaseID:  uuid.New().String(),
		UserID:      userID,
		TicketID:    ticketID,
		Quantity:    quantity,
		PurchasedAt: s.now().UTC(),
	}

	record, remaining, err := s.store.Purchase(ctx, req)
	if err != nil {
		err = classify(err)
		s.logger.Info("purchase rejected",
			zap.String("ticket_id", ticketID),
			zap.String("user_id", userID),
			zap.Int("quantity", quantity),
			zap.Error(err),
		)
		return nil, s.fail(span, err)
	}

	span.SetAttributes(
		attribute.String("purchase.id", record.PurchaseID),
		attribute.Int("ticket.remaining", remaining),
	)
	s.logger.Info("tickets purchased",
		zap.String("purchase_id", record.PurchaseID),
		zap.String("ticket_id", ticketID),
		zap.String("user_id", userID),
		zap.Int("quantity", quantity),
		zap.Int64("total_price", record.TotalPrice),
		zap.Int("remaining", remaining),
	)

	s.snapshot.Observe(ticketID, remaining)
	s.publishPurchased(ctx, record, remaining)

	return &record, nil
}

// GetRemaining returns the remaining stock for display. It may serve a
// snapshot that is up to the cache TTL old.
func (s *Service) GetRemaining(ctx context.Context, ticketID string) (int, error) {
	if remaining, ok := s.snapshot.Get(ticketID); ok {
		return remaining, nil
	}

	remaining, err := s.store.Remaining(ctx, ticketID)
	if err != nil {
		return 0, classify(err)
	}
	s.snapshot.Set(ticketID, remaining)
	return remaining, nil
}

// ListPurchases returns the user's purchases, most recent first.
func (s *Service) ListPurchases(ctx context.Context, userID string) ([]PurchaseRecord, error) {
	records, err := s.store.ListPurchases(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	if records == nil {
		records = []PurchaseRecord{}
	}
	return records, nil
}

// Aggregate sums all purchase records and counts catalog events.
func (s *Service) Aggregate(ctx context.Context) (Summary, error) {
	summary, err := s.store.Aggregate(ctx)
	if err != nil {
		return Summary{}, classify(err)
	}
	return summary, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// publishPurchased runs after the commit; a delivery failure is logged and
// never undoes the purchase.
func (s *Service) publishPurchased(ctx context.Context, record PurchaseRecord, remaining int) {
	if s.publisher == nil {
		return
	}

	env, err := NewEnvelope(EventTicketsPurchased, record.TicketID, TicketsPurchased{
		PurchaseID:        record.PurchaseID,
		UserID:            record.UserID,
		TicketID:          record.TicketID,
		Quantity:          record.Quantity,
		TotalPrice:        record.TotalPrice,
		QuantityRemaining: remaining,
		PurchasedAt:       record.PurchaseTime,
	})
	if err != nil {
		s.logger.Error("failed to build purchase event", zap.String("purchase_id", record.PurchaseID), zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, record.TicketID, env); err != nil {
		s.logger.Warn("failed to publish purchase event",
			zap.String("purchase_id", record.PurchaseID),
			zap.Error(err),
		)
	}
}
