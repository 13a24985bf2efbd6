package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"TrancheVault/internal/event"
	"TrancheVault/internal/kernel"
)

// OutboundPublisher publishes committed updates to NATS for downstream
// consumers. Updates arrive here after persistence is confirmed.
// Subjects follow the pattern tranche.events.{event_type}.{market_id}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan kernel.Update
	log       zerolog.Logger
}

// PublishableEvent is the outbound envelope.
type PublishableEvent struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	MarketID  string      `json:"market_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan kernel.Update, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case u, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			for _, evt := range Publishables(u) {
				if err := op.publish(ctx, evt); err != nil {
					// Non-fatal: downstream consumers can query the API directly.
					op.log.Warn().Err(err).Str("event_type", evt.EventType).Str("market_id", evt.MarketID).Msg("outbound publish failed")
				}
			}
		}
	}
}

// Publishables converts one committed update into its outbound events.
func Publishables(u kernel.Update) []PublishableEvent {
	var out []PublishableEvent
	now := time.Now()

	if u.Synced != nil {
		s := u.Synced
		out = append(out, PublishableEvent{
			EventID:   uuid.New().String(),
			EventType: event.EventTypeLedgerSynced.String(),
			MarketID:  u.MarketID,
			Timestamp: now,
			Payload: event.LedgerSynced{
				MarketID:         s.MarketID,
				STRawNAV:         int64(s.STRawNAV),
				JTRawNAV:         int64(s.JTRawNAV),
				STEffectiveNAV:   int64(s.STEffectiveNAV),
				JTEffectiveNAV:   int64(s.JTEffectiveNAV),
				STCoverageDebt:   int64(s.STCoverageDebt),
				JTCoverageDebt:   int64(s.JTCoverageDebt),
				JuniorAbsorbed:   int64(s.JuniorAbsorbed),
				SeniorLossExcess: int64(s.SeniorLossExcess),
				SeniorRecovered:  int64(s.SeniorRecovered),
				CoverageRepaid:   int64(s.CoverageRepaid),
				CoverageForgiven: int64(s.CoverageForgiven),
				STFeeAccrued:     int64(s.STFeeAccrued),
				JTFeeAccrued:     int64(s.JTFeeAccrued),
				JuniorYieldShare: int64(s.JuniorYieldShare),
				Utilization:      int64(s.Utilization),
				LTV:              int64(s.LTV),
				State:            s.State.String(),
				Timestamp:        s.Timestamp,
				Version:          s.Version,
			},
		})
	}

	if u.Request != nil {
		r := u.Request
		out = append(out, PublishableEvent{
			EventID:   uuid.New().String(),
			EventType: event.EventTypeRedemptionUpdated.String(),
			MarketID:  u.MarketID,
			Timestamp: now,
			Payload: event.RedemptionUpdated{
				MarketID:       r.MarketID,
				RequestID:      r.ID,
				Controller:     r.Controller,
				Shares:         int64(r.Shares),
				NAVPerShare:    int64(r.NAVPerShare),
				ClaimableAfter: r.ClaimableAfter,
				CreatedAt:      r.CreatedAt,
				Status:         string(r.Status),
			},
		})
	}

	if u.FeePaid != nil {
		f := u.FeePaid
		out = append(out, PublishableEvent{
			EventID:   uuid.New().String(),
			EventType: event.EventTypeFeesPaid.String(),
			MarketID:  u.MarketID,
			Timestamp: now,
			Payload: event.FeesPaid{
				MarketID:  u.MarketID,
				Tranche:   f.Tranche.String(),
				Recipient: f.Recipient,
				Value:     int64(f.Value),
				Amount:    int64(f.Amount),
			},
		})
	}

	return out
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("tranche.events.%s.%s", evt.EventType, evt.MarketID)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "TRANCHE_EVENTS",
		Subjects:  []string{"tranche.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
