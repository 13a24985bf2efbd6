package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/kernel"
	"TrancheVault/internal/shares"
	"TrancheVault/internal/units"
	"TrancheVault/internal/venue"
)

// Store reads and writes the durable market state outside the batch path:
// market configurations at boot / on config updates, and the recovery reads
// that rebuild the kernel after a restart.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertMarket persists a market configuration. Structural fields only
// change on first insert; updates overwrite the mutable surface.
func (s *Store) UpsertMarket(ctx context.Context, cfg accounting.MarketConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tranche.markets
			(market_id, coverage_ratio, beta, senior_fee_rate, junior_fee_rate,
			 redemption_delay_ms, fixed_term_duration_ms, lltv,
			 forgive_coverage_on_expiry, fee_recipient)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (market_id) DO UPDATE SET
			senior_fee_rate = EXCLUDED.senior_fee_rate,
			junior_fee_rate = EXCLUDED.junior_fee_rate,
			redemption_delay_ms = EXCLUDED.redemption_delay_ms,
			fixed_term_duration_ms = EXCLUDED.fixed_term_duration_ms,
			lltv = EXCLUDED.lltv,
			forgive_coverage_on_expiry = EXCLUDED.forgive_coverage_on_expiry,
			fee_recipient = EXCLUDED.fee_recipient,
			updated_at = NOW()`,
		cfg.MarketID, int64(cfg.CoverageRatio), int64(cfg.Beta),
		int64(cfg.SeniorFeeRate), int64(cfg.JuniorFeeRate),
		cfg.RedemptionDelay.Milliseconds(), cfg.FixedTermDuration.Milliseconds(),
		int64(cfg.LLTV), cfg.ForgiveCoverageOnExpiry, cfg.FeeRecipient,
	)
	return err
}

// LoadLedger reads the persisted ledger for one market. The second return
// is false when the market has never synced.
func (s *Store) LoadLedger(ctx context.Context, marketID string) (accounting.Ledger, bool, error) {
	var (
		led   accounting.Ledger
		state string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT market_id, st_raw_nav, jt_raw_nav, st_effective_nav, jt_effective_nav,
		       st_coverage_debt, jt_coverage_debt, st_fees_owed, jt_fees_owed,
		       jt_loss_carry, yield_share_acc, last_accrual_at, last_distribution_at,
		       state, fixed_term_entered_at, version
		FROM tranche.accounting_ledger
		WHERE market_id = $1`, marketID,
	).Scan(
		&led.MarketID, &led.STRawNAV, &led.JTRawNAV, &led.STEffectiveNAV, &led.JTEffectiveNAV,
		&led.STCoverageDebt, &led.JTCoverageDebt, &led.STFeesOwed, &led.JTFeesOwed,
		&led.JTLossCarry, &led.YieldShareAcc, &led.LastAccrualAt, &led.LastDistributionAt,
		&state, &led.FixedTermEnteredAt, &led.Version,
	)
	if err == sql.ErrNoRows {
		return accounting.Ledger{}, false, nil
	}
	if err != nil {
		return accounting.Ledger{}, false, fmt.Errorf("load ledger %s: %w", marketID, err)
	}

	led.State, err = accounting.ParseMarketState(state)
	if err != nil {
		return accounting.Ledger{}, false, fmt.Errorf("load ledger %s: %w", marketID, err)
	}
	return led, true, nil
}

// LoadVenueStates reads the persisted venue positions for one market.
func (s *Store) LoadVenueStates(ctx context.Context, marketID string) ([]venue.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT venue_id, value, supply_index, last_seq
		FROM tranche.venue_state
		WHERE market_id = $1
		ORDER BY tranche DESC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("load venue state %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []venue.State
	for rows.Next() {
		var (
			vs           venue.State
			value, index int64
			lastSeq      int64
		)
		if err := rows.Scan(&vs.VenueID, &value, &index, &lastSeq); err != nil {
			return nil, err
		}
		vs.Value = units.Tranche(value)
		vs.Index = units.Fraction(index)
		vs.LastSeq = uint64(lastSeq)
		out = append(out, vs)
	}
	return out, rows.Err()
}

// LoadBalances reads all share balances for one market.
func (s *Store) LoadBalances(ctx context.Context, marketID string) ([]shares.BalanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tranche, account, balance, escrowed
		FROM tranche.share_balances
		WHERE market_id = $1 AND (balance > 0 OR escrowed > 0)`, marketID)
	if err != nil {
		return nil, fmt.Errorf("load balances %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []shares.BalanceRecord
	for rows.Next() {
		var (
			tranche            string
			rec                shares.BalanceRecord
			balance, escrTotal int64
		)
		if err := rows.Scan(&tranche, &rec.Account, &balance, &escrTotal); err != nil {
			return nil, err
		}
		rec.Tranche, err = accounting.ParseTrancheID(tranche)
		if err != nil {
			return nil, fmt.Errorf("load balances %s: %w", marketID, err)
		}
		rec.Balance = units.Shares(balance)
		rec.Escrowed = units.Shares(escrTotal)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadOpenRequests reads the live redemption queue: open requests plus
// cancelled ones whose escrow has not been claimed back yet.
func (s *Store) LoadOpenRequests(ctx context.Context, marketID string) ([]kernel.RedemptionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, controller, shares, nav_per_share,
		       claimable_after_ms, created_at_ms, status
		FROM tranche.redemption_requests
		WHERE market_id = $1 AND status IN ('open', 'cancelled')
		ORDER BY request_id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("load requests %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []kernel.RedemptionRequest
	for rows.Next() {
		var (
			req              kernel.RedemptionRequest
			shareAmt, navPer int64
			status           string
		)
		req.MarketID = marketID
		if err := rows.Scan(&req.ID, &req.Controller, &shareAmt, &navPer,
			&req.ClaimableAfter, &req.CreatedAt, &status); err != nil {
			return nil, err
		}
		req.Shares = units.Shares(shareAmt)
		req.NAVPerShare = units.NAV(navPer)
		req.Status = kernel.RequestStatus(status)
		out = append(out, req)
	}
	return out, rows.Err()
}

// LastRequestID returns the highest request id ever issued for a market,
// closed requests included, so restarts never reuse an id.
func (s *Store) LastRequestID(ctx context.Context, marketID string) (uint64, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(request_id) FROM tranche.redemption_requests
		WHERE market_id = $1`, marketID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("last request id %s: %w", marketID, err)
	}
	if !id.Valid {
		return 0, nil
	}
	return uint64(id.Int64), nil
}

// Recovery bundles everything needed to rebuild one market's kernel state.
type Recovery struct {
	Ledger        accounting.Ledger
	HasLedger     bool
	Venues        []venue.State
	Balances      []shares.BalanceRecord
	Requests      []kernel.RedemptionRequest
	LastRequestID uint64
}

// RecoverMarket loads the persisted state for one market.
func (s *Store) RecoverMarket(ctx context.Context, marketID string) (Recovery, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		rec Recovery
		err error
	)
	rec.Ledger, rec.HasLedger, err = s.LoadLedger(ctx, marketID)
	if err != nil {
		return Recovery{}, err
	}
	if !rec.HasLedger {
		return rec, nil
	}
	if rec.Venues, err = s.LoadVenueStates(ctx, marketID); err != nil {
		return Recovery{}, err
	}
	if rec.Balances, err = s.LoadBalances(ctx, marketID); err != nil {
		return Recovery{}, err
	}
	if rec.Requests, err = s.LoadOpenRequests(ctx, marketID); err != nil {
		return Recovery{}, err
	}
	if rec.LastRequestID, err = s.LastRequestID(ctx, marketID); err != nil {
		return Recovery{}, err
	}
	return rec, nil
}
