package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/event-ticketing/internal/domain/ledger"
	"go.uber.org/zap"
)

// Projector keeps the remaining-stock snapshot of this instance in step with
// purchases committed by any instance.
type Projector struct {
	snapshot *ledger.SnapshotCache
	logger   *zap.Logger
}

func NewProjector(snapshot *ledger.SnapshotCache, logger *zap.Logger) *Projector {
	return &Projector{snapshot: snapshot, logger: logger.Named("projector")}
}

// HandleEvent matches kafka.MessageHandler.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var env ledger.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}

	p.logger.Debug("received event",
		zap.String("event_type", env.EventType),
		zap.String("ticket_id", env.TicketID),
	)

	switch env.EventType {
	case ledger.EventTicketsPurchased:
		return p.handleTicketsPurchased(env)
	}
	return nil
}

func (p *Projector) handleTicketsPurchased(env ledger.Envelope) error {
	var e ledger.TicketsPurchased
	if err := json.Unmarshal(env.Data, &e); err != nil {
		return fmt.Errorf("failed to decode %s: %w", env.EventType, err)
	}
	if e.TicketID == "" {
		return fmt.Errorf("%s %s has no ticket_id", env.EventType, env.ID)
	}

	p.snapshot.Observe(e.TicketID, e.QuantityRemaining)
	if e.QuantityRemaining == 0 {
		p.logger.Info("ticket sold out", zap.String("ticket_id", e.TicketID))
	}
	return nil
}
