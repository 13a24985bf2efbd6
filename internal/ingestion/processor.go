package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/apperrors"
	"TrancheVault/internal/event"
	"TrancheVault/internal/kernel"
	"TrancheVault/internal/observability"
)

// Processor is the ingestion shell: it validates and parses raw NATS events,
// then applies them to the kernel. Injected events (admin surface) join the
// same loop so every mutation takes the same path.
//
// Poison messages (unparseable, unknown venue or market) are acked and
// dropped: redelivery cannot fix them. Transient failures are nacked for
// redelivery.
type Processor struct {
	kernel   *kernel.Kernel
	rawChan  <-chan RawEvent
	injected <-chan event.Event
	subjects []SubjectConfig
	log      zerolog.Logger
	metrics  *observability.Metrics
	configs  ConfigStore

	// Last applied config sequence per market. Marks and sync triggers
	// carry their own idempotency (venue sequence, full recompute).
	configSeq map[string]int64
}

func NewProcessor(k *kernel.Kernel, rawChan <-chan RawEvent, injected <-chan event.Event, subjects []SubjectConfig, log zerolog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		kernel:    k,
		rawChan:   rawChan,
		injected:  injected,
		subjects:  subjects,
		log:       log,
		metrics:   metrics,
		configSeq: make(map[string]int64),
	}
}

// ConfigStore persists applied configuration updates so they survive a
// restart past the inbound stream's retention window.
type ConfigStore interface {
	UpsertMarket(ctx context.Context, cfg accounting.MarketConfig) error
}

// SetConfigStore attaches the durable config store. Without one, applied
// updates only live as long as the inbound stream retains them.
func (p *Processor) SetConfigStore(s ConfigStore) { p.configs = s }

// Run processes events until the context is cancelled or both inputs close.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-p.rawChan:
			if !ok {
				return nil
			}
			p.handleRaw(raw)

		case evt, ok := <-p.injected:
			if !ok {
				return nil
			}
			if err := p.Apply(evt); err != nil {
				p.log.Warn().Err(err).Str("event_type", evt.EventType().String()).Msg("injected event rejected")
			}
		}
	}
}

func (p *Processor) handleRaw(raw RawEvent) {
	start := time.Now()
	eventType, ok := EventTypeForSubject(raw.Subject, p.subjects)
	if !ok {
		p.log.Warn().Str("subject", raw.Subject).Msg("no event type for subject, dropping")
		raw.AckFunc()
		return
	}

	evt, err := ParseRawEvent(raw, eventType)
	if err != nil {
		p.log.Warn().Err(err).Str("subject", raw.Subject).Msg("unparseable event, dropping")
		raw.AckFunc()
		return
	}

	if err := p.Apply(evt); err != nil {
		if isPoison(err) {
			p.log.Warn().Err(err).Str("key", evt.IdempotencyKey()).Msg("unroutable event, dropping")
			raw.AckFunc()
		} else {
			p.log.Error().Err(err).Str("key", evt.IdempotencyKey()).Msg("event failed, redelivering")
			raw.NakFunc()
		}
		return
	}

	raw.AckFunc()
	if p.metrics != nil {
		p.metrics.NATSPullLatency.WithLabelValues(raw.Subject).Observe(time.Since(start).Seconds())
	}
}

// Apply routes one typed event into the kernel.
func (p *Processor) Apply(evt event.Event) error {
	switch e := evt.(type) {
	case *event.NAVMark:
		_, err := p.kernel.ApplyMark(e.Mark())
		return err

	case *event.SyncTrigger:
		_, err := p.kernel.SyncMarket(e.Market)
		return err

	case *event.ConfigUpdate:
		if e.Sequence <= p.configSeq[e.Market] {
			p.log.Debug().Str("market_id", e.Market).Int64("sequence", e.Sequence).Msg("stale config update, skipping")
			return nil
		}
		m, err := p.kernel.Market(e.Market)
		if err != nil {
			return err
		}
		merged := e.Merge(m.Config())
		if err := p.kernel.UpdateConfig(merged); err != nil {
			return err
		}
		p.configSeq[e.Market] = e.Sequence
		if p.configs != nil {
			if err := p.configs.UpsertMarket(context.Background(), merged); err != nil {
				p.log.Error().Err(err).Str("market_id", e.Market).Msg("persist config update failed")
			}
		}
		return nil

	default:
		return apperrors.Newf(apperrors.ErrInvalidRequest, "unhandled event type %s", evt.EventType())
	}
}

// isPoison reports whether retrying the event can never succeed.
func isPoison(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Type {
	case apperrors.ErrNotFound, apperrors.ErrInvalidRequest, apperrors.ErrConfigInvalid:
		return true
	}
	return false
}
