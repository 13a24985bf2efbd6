package accounting

import (
	"fmt"

	"TrancheVault/internal/units"
)

// Ledger is the persistent accounting state for one market. It is owned
// exclusively by the Accountant; all mutation funnels through Sync and the
// operation re-baselining helpers. Timestamps are epoch milliseconds.
type Ledger struct {
	MarketID string

	// Last-observed raw investment value per tranche, net of accrued fees.
	STRawNAV units.NAV
	JTRawNAV units.NAV

	// Value after waterfall/fee/yield adjustments; each tranche's
	// share-price denominator.
	STEffectiveNAV units.NAV
	JTEffectiveNAV units.NAV

	// STCoverageDebt is cumulative loss the senior absorbed beyond junior
	// capacity: the senior's impermanent loss, first claim on recoveries.
	STCoverageDebt units.NAV

	// JTCoverageDebt is cumulative coverage the junior extended to the
	// senior: the junior's claim on future senior recoveries.
	JTCoverageDebt units.NAV

	// Accrued protocol fees not yet claimed by the fee recipient. The fee
	// value physically stays in the venues until claimed, so the kernel
	// subtracts these from venue-reported raw NAV before every sync.
	STFeesOwed units.NAV
	JTFeesOwed units.NAV

	// JTLossCarry is the junior's own-asset loss not yet recovered: the
	// distance between its effective NAV and its prior high-water mark.
	// Gains burn this down before any of them are fee-eligible. Senior
	// losses need no equivalent since they are recorded as coverage debts
	// and recovered before yield accrues.
	JTLossCarry units.NAV

	// YieldShareAcc integrates the instantaneous junior yield share over
	// time (fraction-scaled milliseconds) since LastDistributionAt.
	YieldShareAcc      int64
	LastAccrualAt      int64
	LastDistributionAt int64

	State              MarketState
	FixedTermEnteredAt int64

	// Version increments on every persisted mutation.
	Version int64
}

// NewLedger returns the empty ledger for a fresh market.
func NewLedger(marketID string, now int64) *Ledger {
	return &Ledger{
		MarketID:           marketID,
		State:              StatePerpetual,
		LastAccrualAt:      now,
		LastDistributionAt: now,
	}
}

// checkConservation panics unless raw and effective NAV sums agree. The
// waterfall only redistributes value between the tranches; a mismatch means
// the engine itself is broken, which is never recoverable.
func (l *Ledger) checkConservation() {
	rawSum := units.AddNAV(l.STRawNAV, l.JTRawNAV)
	effSum := units.AddNAV(l.STEffectiveNAV, l.JTEffectiveNAV)
	if rawSum != effSum {
		panic(fmt.Sprintf(
			"FATAL: NAV conservation violated for market %s: raw %s+%s != effective %s+%s",
			l.MarketID, l.STRawNAV, l.JTRawNAV, l.STEffectiveNAV, l.JTEffectiveNAV,
		))
	}
}

// RawNAV returns the stored raw NAV for a tranche.
func (l *Ledger) RawNAV(t TrancheID) units.NAV {
	if t == TrancheSenior {
		return l.STRawNAV
	}
	return l.JTRawNAV
}

// EffectiveNAV returns the stored effective NAV for a tranche.
func (l *Ledger) EffectiveNAV(t TrancheID) units.NAV {
	if t == TrancheSenior {
		return l.STEffectiveNAV
	}
	return l.JTEffectiveNAV
}

// AssetClaims is the derived split of a redemption's value between the
// tranche's own venue and the counter-tranche venue. The counter claim is
// non-zero only while cross-tranche coverage is active, i.e. while a
// tranche's effective NAV exceeds its raw NAV.
type AssetClaims struct {
	OwnAsset     units.NAV
	CounterAsset units.NAV
	Value        units.NAV
}

// ClaimsFor splits a claim of the given effective value for one tranche.
// The own-venue portion is value * raw / effective, floored; whatever the
// own venue cannot back is drawn from the counter venue.
func (l *Ledger) ClaimsFor(t TrancheID, value units.NAV) AssetClaims {
	if value <= 0 {
		return AssetClaims{}
	}

	raw := l.RawNAV(t)
	eff := l.EffectiveNAV(t)
	if eff <= 0 {
		return AssetClaims{Value: value, OwnAsset: value}
	}

	own := value
	if raw < eff {
		own = units.MulDivNAV(value, raw, eff, units.RoundDown)
	}
	if own > value {
		own = value
	}

	return AssetClaims{
		OwnAsset:     own,
		CounterAsset: value - own,
		Value:        value,
	}
}

// SyncedState is the full result of one accounting sync, returned to the
// caller so it can act on it (gate an in-flight operation, record metrics,
// publish outbound).
type SyncedState struct {
	MarketID string

	STRawNAV       units.NAV
	JTRawNAV       units.NAV
	STEffectiveNAV units.NAV
	JTEffectiveNAV units.NAV
	STCoverageDebt units.NAV
	JTCoverageDebt units.NAV

	// Per-sync accrued protocol fees, in NAV units, already deducted from
	// the payer's sides of the ledger and added to the ledger's owed
	// balances.
	STFeeAccrued units.NAV
	JTFeeAccrued units.NAV

	// Waterfall breakdown for this sync.
	JuniorAbsorbed   units.NAV // coverage extended by the junior this sync
	SeniorLossExcess units.NAV // senior impermanent loss added this sync
	SeniorRecovered  units.NAV // senior impermanent loss repaid this sync
	CoverageRepaid   units.NAV // junior coverage claim repaid this sync
	CoverageForgiven units.NAV // junior coverage claim cleared on term expiry

	JuniorYieldShare units.Fraction // time-weighted share applied to the split
	Utilization      units.Fraction
	LTV              units.Fraction

	State     MarketState
	Timestamp int64
	Version   int64
}
