// Package kernel orchestrates tranche operations around the accounting
// engine: every deposit, withdrawal and redemption is wrapped in a
// pre-operation sync (fresh venue NAVs through the waterfall) and a
// post-operation re-baseline, under one per-market lock. The kernel also
// owns the junior redemption queue and the coverage-gated max views.
package kernel

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/apperrors"
	"TrancheVault/internal/observability"
	"TrancheVault/internal/shares"
	"TrancheVault/internal/units"
	"TrancheVault/internal/venue"
	"TrancheVault/internal/ydm"
)

// RequestStatus is the redemption-request lifecycle state.
type RequestStatus string

const (
	StatusOpen      RequestStatus = "open"
	StatusCancelled RequestStatus = "cancelled"
	StatusClosed    RequestStatus = "closed"
)

// RedemptionRequest is one junior redemption, escrowed behind the mandatory
// delay. Shares is the remaining unclaimed amount; the NAV-per-share
// snapshot pins the claim value to min(request-time, claim-time) pricing.
type RedemptionRequest struct {
	ID             uint64 // monotonic per market; 0 is the "no request" sentinel
	MarketID       string
	Controller     string
	Shares         units.Shares
	NAVPerShare    units.NAV
	ClaimableAfter int64 // epoch millis
	CreatedAt      int64
	Status         RequestStatus
}

// Update is the change set one committed operation produces. The
// persistence writer and the outbound publisher both consume these.
type Update struct {
	MarketID string
	Ledger   accounting.Ledger
	Venues   []venue.State // senior first, then junior
	Synced   *accounting.SyncedState
	Request  *RedemptionRequest
	Balances []shares.BalanceRecord
	FeePaid  *FeePayment
}

// FeePayment records a fee claim paid out to the recipient.
type FeePayment struct {
	Tranche   accounting.TrancheID
	Recipient string
	Value     units.NAV
	Amount    units.Tranche
}

// Market is the kernel for one two-tranche market. All operations serialize
// on the market mutex; a sync is a short terminating computation, so the
// lock is never held across anything blocking.
type Market struct {
	mu sync.Mutex

	acct     *accounting.Accountant
	registry *shares.Registry
	venues   [2]venue.Venue

	requests      map[uint64]*RedemptionRequest
	nextRequestID uint64

	clock   func() time.Time
	log     zerolog.Logger
	metrics *observability.Metrics
	emit    func(Update)
}

// Option configures a Market at construction.
type Option func(*Market)

// WithClock substitutes the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Market) { m.clock = clock }
}

// WithLogger attaches a component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Market) { m.log = log }
}

// WithMetrics attaches the Prometheus registry.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Market) { m.metrics = metrics }
}

// WithEmit sets the update sink consumed by persistence and publishing.
func WithEmit(emit func(Update)) Option {
	return func(m *Market) { m.emit = emit }
}

// NewMarket builds a market kernel over its venues. Recovery state is
// loaded afterwards through Restore.
func NewMarket(cfg accounting.MarketConfig, model ydm.Model, seniorVenue, juniorVenue venue.Venue, opts ...Option) (*Market, error) {
	m := &Market{
		venues:        [2]venue.Venue{seniorVenue, juniorVenue},
		requests:      make(map[uint64]*RedemptionRequest),
		nextRequestID: 1,
		clock:         time.Now,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	acct, err := accounting.NewAccountant(cfg, model, nil, m.clock())
	if err != nil {
		return nil, apperrors.New(apperrors.ErrConfigInvalid, err.Error(), err)
	}
	m.acct = acct
	m.registry = shares.NewRegistry(cfg.MarketID)
	return m, nil
}

// Restore loads recovered state into a freshly constructed market: the
// persisted ledger, venue positions, share positions and open redemption
// requests. lastRequestID is the highest id ever issued (closed requests
// included) so a restart never reuses one.
func (m *Market) Restore(led accounting.Ledger, venueStates []venue.State, balances []shares.BalanceRecord, requests []RedemptionRequest, lastRequestID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.acct.RestoreLedger(led); err != nil {
		return apperrors.New(apperrors.ErrInternal, err.Error(), err)
	}
	for _, vs := range venueStates {
		restored := false
		for _, v := range m.venues {
			if v.ID() == vs.VenueID {
				if err := v.RestoreState(vs); err != nil {
					return apperrors.New(apperrors.ErrInternal, err.Error(), err)
				}
				restored = true
				break
			}
		}
		if !restored {
			return apperrors.Newf(apperrors.ErrInternal, "venue state %s does not match any venue of market %s", vs.VenueID, led.MarketID)
		}
	}
	for _, rec := range balances {
		m.registry.Restore(rec)
	}
	if lastRequestID >= m.nextRequestID {
		m.nextRequestID = lastRequestID + 1
	}
	for _, req := range requests {
		if req.Status == StatusClosed {
			continue
		}
		r := req
		m.requests[r.ID] = &r
		if r.ID >= m.nextRequestID {
			m.nextRequestID = r.ID + 1
		}
	}
	m.log.Info().
		Str("market_id", m.ID()).
		Int64("ledger_version", led.Version).
		Int("open_requests", len(m.requests)).
		Msg("market state restored")
	return nil
}

// ID returns the market identifier.
func (m *Market) ID() string {
	return m.acct.Config().MarketID
}

// Units returns the tranche-asset precision of one side's venue.
func (m *Market) Units(t accounting.TrancheID) units.UnitConfig {
	return m.venues[t].Units()
}

// VenueIDs returns the senior and junior venue identifiers.
func (m *Market) VenueIDs() (string, string) {
	return m.venues[accounting.TrancheSenior].ID(), m.venues[accounting.TrancheJunior].ID()
}

// Ledger returns a copy of the current accounting ledger.
func (m *Market) Ledger() accounting.Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acct.Ledger()
}

// Config returns the current market configuration.
func (m *Market) Config() accounting.MarketConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acct.Config()
}

// SetConfig applies a configuration update (fee rates, forgiveness policy).
func (m *Market) SetConfig(cfg accounting.MarketConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.acct.SetConfig(cfg); err != nil {
		return apperrors.New(apperrors.ErrConfigInvalid, err.Error(), err)
	}
	m.log.Info().Str("market_id", m.ID()).Msg("market config updated")
	return nil
}

// Request returns a copy of one redemption request.
func (m *Market) Request(controller string, id uint64) (RedemptionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, err := m.requestLocked(controller, id)
	if err != nil {
		return RedemptionRequest{}, err
	}
	return *req, nil
}

// Requests returns copies of all open or cancelled requests for a controller.
func (m *Market) Requests(controller string) []RedemptionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RedemptionRequest, 0, 4)
	for _, req := range m.requests {
		if req.Controller == controller {
			out = append(out, *req)
		}
	}
	return out
}

func (m *Market) requestLocked(controller string, id uint64) (*RedemptionRequest, error) {
	req, ok := m.requests[id]
	if !ok || req.Controller != controller {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "redemption request %d not found for controller %s", id, controller)
	}
	return req, nil
}

// rawNAVsLocked queries both venues and subtracts the accrued fee carve-out,
// which physically remains in the venues until the recipient claims it.
func (m *Market) rawNAVsLocked() (units.NAV, units.NAV) {
	led := m.acct.Ledger()
	st := m.venues[accounting.TrancheSenior].Units().ToNAV(m.venues[accounting.TrancheSenior].RawNAV(), units.RoundDown)
	jt := m.venues[accounting.TrancheJunior].Units().ToNAV(m.venues[accounting.TrancheJunior].RawNAV(), units.RoundDown)
	return units.SubSaturate(st, led.STFeesOwed), units.SubSaturate(jt, led.JTFeesOwed)
}

// syncLocked commits one accounting sync against fresh venue NAVs.
func (m *Market) syncLocked(now time.Time, trigger string) accounting.SyncedState {
	started := time.Now()
	st, jt := m.rawNAVsLocked()
	res := m.acct.Sync(st, jt, now)

	if m.metrics != nil {
		id := res.MarketID
		m.metrics.SyncsTotal.WithLabelValues(id, trigger).Inc()
		m.metrics.SyncDuration.WithLabelValues(id).Observe(time.Since(started).Seconds())
		m.metrics.JuniorAbsorbed.WithLabelValues(id).Add(navFloat(res.JuniorAbsorbed))
		m.metrics.SeniorLossExcess.WithLabelValues(id).Add(navFloat(res.SeniorLossExcess))
		m.metrics.SeniorRecovered.WithLabelValues(id).Add(navFloat(res.SeniorRecovered))
		m.metrics.CoverageRepaid.WithLabelValues(id).Add(navFloat(res.CoverageRepaid))
		m.metrics.CoverageForgiven.WithLabelValues(id).Add(navFloat(res.CoverageForgiven))
		m.metrics.FeesAccrued.WithLabelValues(id, "senior").Add(navFloat(res.STFeeAccrued))
		m.metrics.FeesAccrued.WithLabelValues(id, "junior").Add(navFloat(res.JTFeeAccrued))
		m.gaugeStateLocked(res)
	}

	if res.JuniorAbsorbed > 0 || res.SeniorLossExcess > 0 {
		m.log.Warn().
			Str("market_id", res.MarketID).
			Str("junior_absorbed", res.JuniorAbsorbed.String()).
			Str("senior_excess", res.SeniorLossExcess.String()).
			Str("state", res.State.String()).
			Msg("loss waterfall executed")
	}
	return res
}

func (m *Market) gaugeStateLocked(res accounting.SyncedState) {
	id := res.MarketID
	m.metrics.EffectiveNAV.WithLabelValues(id, "senior").Set(navFloat(res.STEffectiveNAV))
	m.metrics.EffectiveNAV.WithLabelValues(id, "junior").Set(navFloat(res.JTEffectiveNAV))
	m.metrics.RawNAV.WithLabelValues(id, "senior").Set(navFloat(res.STRawNAV))
	m.metrics.RawNAV.WithLabelValues(id, "junior").Set(navFloat(res.JTRawNAV))
	m.metrics.CoverageDebt.WithLabelValues(id, "senior").Set(navFloat(res.STCoverageDebt))
	m.metrics.CoverageDebt.WithLabelValues(id, "junior").Set(navFloat(res.JTCoverageDebt))
	m.metrics.Utilization.WithLabelValues(id).Set(float64(res.Utilization) / float64(units.FractionScale))
	m.metrics.LTV.WithLabelValues(id).Set(float64(res.LTV) / float64(units.FractionScale))
	m.metrics.MarketState.WithLabelValues(id).Set(float64(res.State))
	m.metrics.LedgerVersion.WithLabelValues(id).Set(float64(res.Version))
}

func (m *Market) emitLocked(u Update) {
	if m.emit == nil {
		return
	}
	u.MarketID = m.ID()
	u.Ledger = m.acct.Ledger()
	u.Venues = []venue.State{
		m.venues[accounting.TrancheSenior].State(),
		m.venues[accounting.TrancheJunior].State(),
	}
	m.emit(u)
}

func (m *Market) recordOp(op, status string, started time.Time) {
	if m.metrics == nil {
		return
	}
	id := m.ID()
	m.metrics.OperationsTotal.WithLabelValues(id, op, status).Inc()
	m.metrics.OperationDuration.WithLabelValues(id, op).Observe(time.Since(started).Seconds())
}

func (m *Market) rejectOp(op string, err *apperrors.AppError, started time.Time) error {
	if m.metrics != nil {
		m.recordOp(op, "rejected", started)
		m.metrics.GatingRejections.WithLabelValues(m.ID(), op, string(err.Type)).Inc()
	}
	m.log.Debug().Str("market_id", m.ID()).Str("op", op).Str("code", string(err.Type)).Msg(err.Message)
	return err
}

func navFloat(v units.NAV) float64 {
	return float64(v) / float64(units.NAVScale)
}

// SyncNow runs the standalone mark-to-market sync entry point.
func (m *Market) SyncNow() accounting.SyncedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.syncLocked(m.clock(), "explicit")
	m.emitLocked(Update{Synced: &res})
	return res
}

// ApplyMark routes a NAV mark to the owning venue. A stale mark is dropped
// without touching the ledger; an applied one triggers a full sync.
func (m *Market) ApplyMark(mark venue.Mark) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target venue.Venue
	for _, v := range m.venues {
		if v.ID() == mark.VenueID {
			target = v
			break
		}
	}
	if target == nil {
		return false, apperrors.Newf(apperrors.ErrNotFound, "venue %s not attached to market %s", mark.VenueID, m.ID())
	}

	applied, err := target.ApplyMark(mark)
	if err != nil {
		return false, apperrors.New(apperrors.ErrInvalidRequest, err.Error(), err)
	}
	if m.metrics != nil {
		if applied {
			m.metrics.MarksApplied.WithLabelValues(mark.VenueID).Inc()
		} else {
			m.metrics.MarksDropped.WithLabelValues(mark.VenueID, "stale_sequence").Inc()
		}
	}
	if !applied {
		return false, nil
	}

	res := m.syncLocked(m.clock(), "mark")
	m.emitLocked(Update{Synced: &res})
	return true, nil
}
