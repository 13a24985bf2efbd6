// Package persistence mirrors the kernel's committed state into Postgres:
// the latest ledger and share balances per market (upserted), the open
// redemption queue, and an append-only sync log as the audit trail.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// StateWriter writes committed updates to Postgres using multi-row upserts.
// Multi-row INSERT ... ON CONFLICT keeps writes idempotent across worker
// retries and restarts; switch to pgx CopyFrom if the sync log ever becomes
// the bottleneck.
type StateWriter struct {
	db *sql.DB
}

// LedgerRow mirrors one market's accounting ledger.
type LedgerRow struct {
	MarketID           string
	STRawNAV           int64
	JTRawNAV           int64
	STEffectiveNAV     int64
	JTEffectiveNAV     int64
	STCoverageDebt     int64
	JTCoverageDebt     int64
	STFeesOwed         int64
	JTFeesOwed         int64
	JTLossCarry        int64
	YieldShareAcc      int64
	LastAccrualAt      int64
	LastDistributionAt int64
	State              string
	FixedTermEnteredAt int64
	Version            int64
}

// SyncRow is one committed sync result, keyed (market_id, version).
type SyncRow struct {
	MarketID         string
	Version          int64
	STRawNAV         int64
	JTRawNAV         int64
	STEffectiveNAV   int64
	JTEffectiveNAV   int64
	STCoverageDebt   int64
	JTCoverageDebt   int64
	JuniorAbsorbed   int64
	SeniorLossExcess int64
	SeniorRecovered  int64
	CoverageRepaid   int64
	CoverageForgiven int64
	STFeeAccrued     int64
	JTFeeAccrued     int64
	JuniorYieldShare int64
	Utilization      int64
	LTV              int64
	State            string
	Timestamp        int64
}

// RequestRow mirrors one redemption request, terminal states included.
type RequestRow struct {
	MarketID       string
	RequestID      uint64
	Controller     string
	Shares         int64
	NAVPerShare    int64
	ClaimableAfter int64
	CreatedAt      int64
	Status         string
}

// BalanceRow mirrors one account's share balance in one tranche.
type BalanceRow struct {
	MarketID string
	Tranche  string
	Account  string
	Balance  int64
	Escrowed int64
}

// VenueRow mirrors one venue's valuation state: the absolute value for
// vault venues, the scaled balance and supply index for lending venues.
// Version is the ledger version the snapshot belongs to.
type VenueRow struct {
	MarketID    string
	VenueID     string
	Tranche     string
	Value       int64
	SupplyIndex int64
	LastSeq     int64
	Version     int64
}

func NewStateWriter(db *sql.DB) *StateWriter {
	return &StateWriter{db: db}
}

// WriteLedgers upserts ledgers, newest version wins. The version guard makes
// replays of an older batch a no-op.
func (w *StateWriter) WriteLedgers(ctx context.Context, tx *sql.Tx, rows []LedgerRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO tranche.accounting_ledger
		(market_id, st_raw_nav, jt_raw_nav, st_effective_nav, jt_effective_nav,
		 st_coverage_debt, jt_coverage_debt, st_fees_owed, jt_fees_owed,
		 jt_loss_carry, yield_share_acc, last_accrual_at, last_distribution_at,
		 state, fixed_term_entered_at, version)
		VALUES `

	const n = 16
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*n)
	for i, r := range rows {
		values = append(values, placeholders(i*n, n))
		args = append(args,
			r.MarketID, r.STRawNAV, r.JTRawNAV, r.STEffectiveNAV, r.JTEffectiveNAV,
			r.STCoverageDebt, r.JTCoverageDebt, r.STFeesOwed, r.JTFeesOwed,
			r.JTLossCarry, r.YieldShareAcc, r.LastAccrualAt, r.LastDistributionAt,
			r.State, r.FixedTermEnteredAt, r.Version,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (market_id) DO UPDATE SET
		st_raw_nav = EXCLUDED.st_raw_nav,
		jt_raw_nav = EXCLUDED.jt_raw_nav,
		st_effective_nav = EXCLUDED.st_effective_nav,
		jt_effective_nav = EXCLUDED.jt_effective_nav,
		st_coverage_debt = EXCLUDED.st_coverage_debt,
		jt_coverage_debt = EXCLUDED.jt_coverage_debt,
		st_fees_owed = EXCLUDED.st_fees_owed,
		jt_fees_owed = EXCLUDED.jt_fees_owed,
		jt_loss_carry = EXCLUDED.jt_loss_carry,
		yield_share_acc = EXCLUDED.yield_share_acc,
		last_accrual_at = EXCLUDED.last_accrual_at,
		last_distribution_at = EXCLUDED.last_distribution_at,
		state = EXCLUDED.state,
		fixed_term_entered_at = EXCLUDED.fixed_term_entered_at,
		version = EXCLUDED.version
		WHERE tranche.accounting_ledger.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteSyncLog appends sync results; duplicates from retries are dropped.
func (w *StateWriter) WriteSyncLog(ctx context.Context, tx *sql.Tx, rows []SyncRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO tranche.sync_log
		(market_id, version, st_raw_nav, jt_raw_nav, st_effective_nav, jt_effective_nav,
		 st_coverage_debt, jt_coverage_debt, junior_absorbed, senior_loss_excess,
		 senior_recovered, coverage_repaid, coverage_forgiven, st_fee_accrued,
		 jt_fee_accrued, junior_yield_share, utilization, ltv, state, timestamp_ms)
		VALUES `

	const n = 20
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*n)
	for i, r := range rows {
		values = append(values, placeholders(i*n, n))
		args = append(args,
			r.MarketID, r.Version, r.STRawNAV, r.JTRawNAV, r.STEffectiveNAV, r.JTEffectiveNAV,
			r.STCoverageDebt, r.JTCoverageDebt, r.JuniorAbsorbed, r.SeniorLossExcess,
			r.SeniorRecovered, r.CoverageRepaid, r.CoverageForgiven, r.STFeeAccrued,
			r.JTFeeAccrued, r.JuniorYieldShare, r.Utilization, r.LTV, r.State, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (market_id, version) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteRequests upserts redemption requests through their lifecycle.
func (w *StateWriter) WriteRequests(ctx context.Context, tx *sql.Tx, rows []RequestRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO tranche.redemption_requests
		(market_id, request_id, controller, shares, nav_per_share,
		 claimable_after_ms, created_at_ms, status)
		VALUES `

	const n = 8
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*n)
	for i, r := range rows {
		values = append(values, placeholders(i*n, n))
		args = append(args,
			r.MarketID, r.RequestID, r.Controller, r.Shares, r.NAVPerShare,
			r.ClaimableAfter, r.CreatedAt, r.Status,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (market_id, request_id) DO UPDATE SET
		shares = EXCLUDED.shares,
		status = EXCLUDED.status`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteBalances upserts share balances.
func (w *StateWriter) WriteBalances(ctx context.Context, tx *sql.Tx, rows []BalanceRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO tranche.share_balances
		(market_id, tranche, account, balance, escrowed)
		VALUES `

	const n = 5
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*n)
	for i, r := range rows {
		values = append(values, placeholders(i*n, n))
		args = append(args, r.MarketID, r.Tranche, r.Account, r.Balance, r.Escrowed)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (market_id, tranche, account) DO UPDATE SET
		balance = EXCLUDED.balance,
		escrowed = EXCLUDED.escrowed`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteVenues upserts venue valuation state, newest ledger version wins.
func (w *StateWriter) WriteVenues(ctx context.Context, tx *sql.Tx, rows []VenueRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO tranche.venue_state
		(market_id, venue_id, tranche, value, supply_index, last_seq, version)
		VALUES `

	const n = 7
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*n)
	for i, r := range rows {
		values = append(values, placeholders(i*n, n))
		args = append(args, r.MarketID, r.VenueID, r.Tranche, r.Value, r.SupplyIndex, r.LastSeq, r.Version)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (market_id, venue_id) DO UPDATE SET
		value = EXCLUDED.value,
		supply_index = EXCLUDED.supply_index,
		last_seq = EXCLUDED.last_seq,
		version = EXCLUDED.version
		WHERE tranche.venue_state.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($k+1, ..., $k+n)".
func placeholders(offset, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", offset+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
