package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"TrancheVault/internal/kernel"
	"TrancheVault/internal/observability"
)

// Worker drains the update channel and batch-writes committed state to
// Postgres. The kernel's emit path uses BLOCKING sends into this channel,
// so if the worker falls behind, operations stall rather than losing a
// committed update. Updates are forwarded to the outbound publish channel
// only after their batch commits.
type Worker struct {
	writer       *StateWriter
	db           *sql.DB
	inputChan    <-chan kernel.Update
	publishChan  chan<- kernel.Update
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan kernel.Update,
	publishChan chan<- kernel.Update,
	batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewStateWriter(db),
		db:           db,
		inputChan:    inputChan,
		publishChan:  publishChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
		metrics:      metrics,
	}
}

// batch accumulates rows between flushes. Ledger and balance rows collapse
// to the newest value per key; sync and request rows are all kept.
type batch struct {
	ledgers  map[string]LedgerRow
	venues   map[string]VenueRow
	balances map[string]BalanceRow
	syncs    []SyncRow
	requests []RequestRow
	updates  []kernel.Update
}

func newBatch() *batch {
	return &batch{
		ledgers:  make(map[string]LedgerRow),
		venues:   make(map[string]VenueRow),
		balances: make(map[string]BalanceRow),
	}
}

func (b *batch) add(u kernel.Update) {
	b.ledgers[u.MarketID] = ledgerRow(u)
	for i, vs := range u.Venues {
		tranche := "senior"
		if i == 1 {
			tranche = "junior"
		}
		row := VenueRow{
			MarketID:    u.MarketID,
			VenueID:     vs.VenueID,
			Tranche:     tranche,
			Value:       int64(vs.Value),
			SupplyIndex: int64(vs.Index),
			LastSeq:     int64(vs.LastSeq),
			Version:     u.Ledger.Version,
		}
		b.venues[row.MarketID+"|"+row.VenueID] = row
	}
	if u.Synced != nil {
		b.syncs = append(b.syncs, syncRow(u.MarketID, u))
	}
	if u.Request != nil {
		b.requests = append(b.requests, requestRow(u))
	}
	for _, rec := range u.Balances {
		row := BalanceRow{
			MarketID: u.MarketID,
			Tranche:  rec.Tranche.String(),
			Account:  rec.Account,
			Balance:  int64(rec.Balance),
			Escrowed: int64(rec.Escrowed),
		}
		b.balances[row.MarketID+"|"+row.Tranche+"|"+row.Account] = row
	}
	b.updates = append(b.updates, u)
}

func (b *batch) empty() bool { return len(b.updates) == 0 }

// Run starts the worker loop. It batches incoming updates and flushes when
// the batch is full or the flush timeout expires. Blocks until ctx is
// cancelled or the input channel closes.
func (w *Worker) Run(ctx context.Context) error {
	cur := newBatch()
	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if !cur.empty() {
				// Graceful shutdown: one final flush off the cancelled context.
				if err := w.flush(context.Background(), cur); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case u, ok := <-w.inputChan:
			if !ok {
				if !cur.empty() {
					if err := w.flush(context.Background(), cur); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			cur.add(u)
			if len(cur.updates) >= w.batchSize {
				w.flushWithRetry(ctx, cur)
				cur = newBatch()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if !cur.empty() {
				w.flushWithRetry(ctx, cur)
				cur = newBatch()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// committed update: it retries until the write succeeds or the context is
// cancelled, in which case one last flush runs on a background context.
func (w *Worker) flushWithRetry(ctx context.Context, b *batch) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("updates", len(b.updates)).Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), b); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, b); err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context, b *batch) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	ledgers := make([]LedgerRow, 0, len(b.ledgers))
	for _, r := range b.ledgers {
		ledgers = append(ledgers, r)
	}
	venues := make([]VenueRow, 0, len(b.venues))
	for _, r := range b.venues {
		venues = append(venues, r)
	}
	balances := make([]BalanceRow, 0, len(b.balances))
	for _, r := range b.balances {
		balances = append(balances, r)
	}

	if err := w.writer.WriteLedgers(ctx, tx, ledgers); err != nil {
		w.countError("write_ledgers")
		return err
	}
	if err := w.writer.WriteVenues(ctx, tx, venues); err != nil {
		w.countError("write_venues")
		return err
	}
	if err := w.writer.WriteSyncLog(ctx, tx, b.syncs); err != nil {
		w.countError("write_sync_log")
		return err
	}
	if err := w.writer.WriteRequests(ctx, tx, b.requests); err != nil {
		w.countError("write_requests")
		return err
	}
	if err := w.writer.WriteBalances(ctx, tx, balances); err != nil {
		w.countError("write_balances")
		return err
	}
	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(b.updates)))
		w.metrics.PersistRowsWritten.WithLabelValues("accounting_ledger").Add(float64(len(ledgers)))
		w.metrics.PersistRowsWritten.WithLabelValues("venue_state").Add(float64(len(venues)))
		w.metrics.PersistRowsWritten.WithLabelValues("sync_log").Add(float64(len(b.syncs)))
		w.metrics.PersistRowsWritten.WithLabelValues("redemption_requests").Add(float64(len(b.requests)))
		w.metrics.PersistRowsWritten.WithLabelValues("share_balances").Add(float64(len(balances)))
		for _, r := range ledgers {
			w.metrics.PersistLastVersion.WithLabelValues(r.MarketID).Set(float64(r.Version))
		}
	}

	// Publish after persist. Dropping here loses an outbound notification,
	// never committed state; consumers can re-read through the API.
	if w.publishChan != nil {
		for _, u := range b.updates {
			select {
			case w.publishChan <- u:
			default:
				if w.metrics != nil {
					w.metrics.PublishDrops.Inc()
				}
			}
		}
	}

	return nil
}

func (w *Worker) countError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}

func ledgerRow(u kernel.Update) LedgerRow {
	l := u.Ledger
	return LedgerRow{
		MarketID:           l.MarketID,
		STRawNAV:           int64(l.STRawNAV),
		JTRawNAV:           int64(l.JTRawNAV),
		STEffectiveNAV:     int64(l.STEffectiveNAV),
		JTEffectiveNAV:     int64(l.JTEffectiveNAV),
		STCoverageDebt:     int64(l.STCoverageDebt),
		JTCoverageDebt:     int64(l.JTCoverageDebt),
		STFeesOwed:         int64(l.STFeesOwed),
		JTFeesOwed:         int64(l.JTFeesOwed),
		JTLossCarry:        int64(l.JTLossCarry),
		YieldShareAcc:      l.YieldShareAcc,
		LastAccrualAt:      l.LastAccrualAt,
		LastDistributionAt: l.LastDistributionAt,
		State:              l.State.String(),
		FixedTermEnteredAt: l.FixedTermEnteredAt,
		Version:            l.Version,
	}
}

func syncRow(marketID string, u kernel.Update) SyncRow {
	s := u.Synced
	return SyncRow{
		MarketID:         marketID,
		Version:          s.Version,
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
	}
}

func requestRow(u kernel.Update) RequestRow {
	r := u.Request
	return RequestRow{
		MarketID:       r.MarketID,
		RequestID:      r.ID,
		Controller:     r.Controller,
		Shares:         int64(r.Shares),
		NAVPerShare:    int64(r.NAVPerShare),
		ClaimableAfter: r.ClaimableAfter,
		CreatedAt:      r.CreatedAt,
		Status:         string(r.Status),
	}
}
