package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"TrancheVault/internal/event"
	"TrancheVault/internal/units"
)

// Injector provides admin/manual event injection, used by the HTTP admin
// surface. Injected events join the same processing loop as NATS traffic
// so manual marks obey the same sequencing and routing rules.
type Injector struct {
	eventChan chan<- event.Event
}

func NewInjector(eventChan chan<- event.Event) *Injector {
	return &Injector{eventChan: eventChan}
}

// InjectVaultMark manually injects an absolute-value NAV mark.
func (s *Injector) InjectVaultMark(ctx context.Context, venueID string, sequence uint64, value units.Tranche) error {
	if value < 0 {
		return fmt.Errorf("value must be non-negative")
	}
	return s.send(ctx, &event.NAVMark{
		VenueID:   venueID,
		Sequence:  sequence,
		Value:     value,
		Timestamp: time.Now().UnixMilli(),
	})
}

// InjectLendingMark manually injects a supply-index NAV mark.
func (s *Injector) InjectLendingMark(ctx context.Context, venueID string, sequence uint64, index units.Fraction) error {
	if index <= 0 {
		return fmt.Errorf("index must be positive")
	}
	return s.send(ctx, &event.NAVMark{
		VenueID:   venueID,
		Sequence:  sequence,
		Index:     index,
		Timestamp: time.Now().UnixMilli(),
	})
}

// InjectSync manually triggers a waterfall pass for one market.
func (s *Injector) InjectSync(ctx context.Context, market string) error {
	if market == "" {
		return fmt.Errorf("market must be set")
	}
	return s.send(ctx, &event.SyncTrigger{
		TriggerID: uuid.New(),
		Market:    market,
		Sequence:  time.Now().UnixMilli(), // admin-injected: timestamp as sequence
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Injector) send(ctx context.Context, evt event.Event) error {
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
