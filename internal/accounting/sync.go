package accounting

import (
	"fmt"
	"time"

	"TrancheVault/internal/tmath"
	"TrancheVault/internal/units"
	"TrancheVault/internal/ydm"
)

// Accountant owns one market's AccountingLedger and the pure waterfall
// recomputation. It is not safe for concurrent use; the kernel serializes
// all access under its operation lock.
type Accountant struct {
	cfg    MarketConfig
	model  ydm.Model
	ledger *Ledger
}

// NewAccountant builds an accountant over an existing ledger, or a fresh one
// when led is nil (cold start).
func NewAccountant(cfg MarketConfig, model ydm.Model, led *Ledger, now time.Time) (*Accountant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("market %s: nil yield-distribution model", cfg.MarketID)
	}
	if led == nil {
		led = NewLedger(cfg.MarketID, now.UnixMilli())
	}
	if led.MarketID != cfg.MarketID {
		return nil, fmt.Errorf("ledger market %s does not match config market %s", led.MarketID, cfg.MarketID)
	}
	return &Accountant{cfg: cfg, model: model, ledger: led}, nil
}

// Config returns the current market configuration.
func (a *Accountant) Config() MarketConfig {
	return a.cfg
}

// SetConfig swaps in an updated configuration (fee rates, forgiveness
// policy). Structural fields are immutable per market.
func (a *Accountant) SetConfig(cfg MarketConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.MarketID != a.cfg.MarketID {
		return fmt.Errorf("config market %s does not match %s", cfg.MarketID, a.cfg.MarketID)
	}
	if cfg.CoverageRatio != a.cfg.CoverageRatio || cfg.Beta != a.cfg.Beta {
		return fmt.Errorf("market %s: coverage ratio and beta are immutable", a.cfg.MarketID)
	}
	a.cfg = cfg
	return nil
}

// Ledger returns a copy of the current ledger state.
func (a *Accountant) Ledger() Ledger {
	return *a.ledger
}

// Sync recomputes the ledger from freshly queried raw NAVs and commits the
// result. It never fails on business logic: inputs are well-formed by
// precondition, and arithmetic violations panic.
func (a *Accountant) Sync(stRaw, jtRaw units.NAV, now time.Time) SyncedState {
	next, state := runSync(a.cfg, *a.ledger, a.model, stRaw, jtRaw, now.UnixMilli())
	next.checkConservation()
	*a.ledger = next
	return state
}

// DryRun performs the same recomputation without persisting anything. Used
// by the max-deposit/max-redeem views.
func (a *Accountant) DryRun(stRaw, jtRaw units.NAV, now time.Time) SyncedState {
	_, state := runSync(a.cfg, *a.ledger, a.model, stRaw, jtRaw, now.UnixMilli())
	return state
}

// ApplyDeposit re-baselines the ledger after a deposit executed against a
// venue: the operation's own amount must not flow through the waterfall as
// if it were yield, so raw and effective NAV shift together.
func (a *Accountant) ApplyDeposit(t TrancheID, value units.NAV) {
	if value < 0 {
		panic(fmt.Sprintf("FATAL: negative deposit re-baseline: %s", value))
	}
	l := a.ledger
	if t == TrancheSenior {
		l.STRawNAV = units.AddNAV(l.STRawNAV, value)
		l.STEffectiveNAV = units.AddNAV(l.STEffectiveNAV, value)
	} else {
		l.JTRawNAV = units.AddNAV(l.JTRawNAV, value)
		l.JTEffectiveNAV = units.AddNAV(l.JTEffectiveNAV, value)
	}
	l.Version++
	l.checkConservation()
}

// ApplyWithdrawal re-baselines the ledger after a withdrawal. The claims
// split decides which venue's raw NAV each slice came out of; the effective
// NAV of the redeeming tranche drops by the full value.
func (a *Accountant) ApplyWithdrawal(t TrancheID, claims AssetClaims) error {
	l := a.ledger

	var ownRaw, counterRaw *units.NAV
	var eff *units.NAV
	if t == TrancheSenior {
		ownRaw, counterRaw, eff = &l.STRawNAV, &l.JTRawNAV, &l.STEffectiveNAV
	} else {
		ownRaw, counterRaw, eff = &l.JTRawNAV, &l.STRawNAV, &l.JTEffectiveNAV
	}

	if claims.OwnAsset > *ownRaw {
		return fmt.Errorf("market %s: own-asset claim %s exceeds raw NAV %s", l.MarketID, claims.OwnAsset, *ownRaw)
	}
	if claims.CounterAsset > *counterRaw {
		return fmt.Errorf("market %s: counter-asset claim %s exceeds raw NAV %s", l.MarketID, claims.CounterAsset, *counterRaw)
	}
	if claims.Value > *eff {
		return fmt.Errorf("market %s: claim value %s exceeds effective NAV %s", l.MarketID, claims.Value, *eff)
	}

	*ownRaw -= claims.OwnAsset
	*counterRaw -= claims.CounterAsset
	*eff -= claims.Value
	l.Version++
	l.checkConservation()
	return nil
}

// RestoreLedger replaces the ledger with recovered state, after verifying
// it belongs to this market and balances.
func (a *Accountant) RestoreLedger(led Ledger) error {
	if led.MarketID != a.cfg.MarketID {
		return fmt.Errorf("restored ledger market %s does not match %s", led.MarketID, a.cfg.MarketID)
	}
	led.checkConservation()
	*a.ledger = led
	return nil
}

// TakeFees settles a tranche's accrued fees: the owed amount is returned for
// the caller to withdraw from the venue and pay out, and the ledger's claim
// is cleared. Fees sit outside the two-tranche NAV figures, so conservation
// is unaffected.
func (a *Accountant) TakeFees(t TrancheID) units.NAV {
	l := a.ledger
	var owed units.NAV
	if t == TrancheSenior {
		owed, l.STFeesOwed = l.STFeesOwed, 0
	} else {
		owed, l.JTFeesOwed = l.JTFeesOwed, 0
	}
	if owed > 0 {
		l.Version++
	}
	return owed
}

// runSync is the pure waterfall: it maps (config, ledger, fresh raw NAVs,
// now) to the next ledger plus the per-sync result. now is epoch millis.
func runSync(cfg MarketConfig, led Ledger, model ydm.Model, stRaw, jtRaw units.NAV, now int64) (Ledger, SyncedState) {
	if stRaw < 0 || jtRaw < 0 {
		panic(fmt.Sprintf("FATAL: negative raw NAV for market %s: st=%s jt=%s", led.MarketID, stRaw, jtRaw))
	}

	res := SyncedState{MarketID: led.MarketID, Timestamp: now}

	// Step 1: integrate the instantaneous junior yield share over the time
	// elapsed since the last accrual. Doing this before any value moves is
	// what makes the eventual split deposit/withdraw-weighted.
	utilization := tmath.Utilization(led.STEffectiveNAV, led.JTEffectiveNAV, cfg.CoverageRatio)
	curShare := model.JuniorYieldShare(ydm.Inputs{
		FixedTerm:     led.State == StateFixedTerm,
		SeniorEffNAV:  led.STEffectiveNAV,
		JuniorEffNAV:  led.JTEffectiveNAV,
		Beta:          cfg.Beta,
		CoverageRatio: cfg.CoverageRatio,
		Utilization:   utilization,
	}).Clamp()

	if dt := now - led.LastAccrualAt; dt > 0 {
		led.YieldShareAcc += int64(curShare) * dt
		led.LastAccrualAt = now
	}

	// Step 2: signed deltas against the last stored raw NAVs, the true
	// venue-level P&L since the last observation. Baselining against the
	// effective figures would re-route the same covered loss through the
	// waterfall on every subsequent sync, since a covered tranche's raw
	// NAV sits below its effective NAV until the venue actually recovers.
	stDelta := int64(stRaw) - int64(led.STRawNAV)
	jtDelta := int64(jtRaw) - int64(led.JTRawNAV)

	var stYield, jtShare units.NAV

	switch {
	case stDelta < 0:
		// Step 3: senior loss waterfall. The junior absorbs the
		// beta-adjusted slice up to its coverage capacity; absorption is
		// floored so the junior never under-covers by rounding. Beta
		// co-exposure shrinks the transfer since the junior is already
		// taking the same stress through its own delta.
		loss := units.NAV(-stDelta)

		target := units.MulFraction(loss, units.One-cfg.Beta, units.RoundDown)
		capacity := units.MulFraction(led.JTEffectiveNAV, cfg.CoverageRatio, units.RoundDown)

		// The junior can only absorb with value it will still hold after
		// its own loss this sync lands.
		remaining := led.JTEffectiveNAV
		if jtDelta < 0 {
			remaining = units.SubSaturate(led.JTEffectiveNAV, units.NAV(-jtDelta))
		}

		covered := units.MinNAV(units.MinNAV(target, capacity), remaining)
		excess := loss - covered

		led.JTEffectiveNAV -= covered
		led.JTCoverageDebt = units.AddNAV(led.JTCoverageDebt, covered)
		led.STEffectiveNAV -= excess
		led.STCoverageDebt = units.AddNAV(led.STCoverageDebt, excess)

		res.JuniorAbsorbed = covered
		res.SeniorLossExcess = excess

	case stDelta > 0:
		// Step 4: senior gain. Recovery of senior impermanent loss comes
		// first, dollar for dollar; only the remainder is yield, split by
		// the time-weighted junior share; the junior's slice then repays
		// its outstanding coverage claim.
		gain := units.NAV(stDelta)

		recovered := units.MinNAV(gain, led.STCoverageDebt)
		led.STCoverageDebt -= recovered
		led.STEffectiveNAV = units.AddNAV(led.STEffectiveNAV, recovered)
		res.SeniorRecovered = recovered

		yield := gain - recovered
		if yield > 0 {
			avgShare := curShare
			if window := now - led.LastDistributionAt; window > 0 {
				avgShare = units.Fraction(led.YieldShareAcc / window).Clamp()
			}

			jtShare = units.MulFraction(yield, avgShare, units.RoundDown)
			stYield = yield - jtShare

			led.STEffectiveNAV = units.AddNAV(led.STEffectiveNAV, stYield)
			led.JTEffectiveNAV = units.AddNAV(led.JTEffectiveNAV, jtShare)

			repaid := units.MinNAV(jtShare, led.JTCoverageDebt)
			led.JTCoverageDebt -= repaid
			res.CoverageRepaid = repaid

			res.JuniorYieldShare = avgShare
			led.YieldShareAcc = 0
			led.LastDistributionAt = now
		}
	}

	// Step 5: junior own-asset delta applies directly. Losses create no
	// coverage claim; the junior simply bears them.
	var jtOwnGain units.NAV
	if jtDelta > 0 {
		jtOwnGain = units.NAV(jtDelta)
		led.JTEffectiveNAV = units.AddNAV(led.JTEffectiveNAV, jtOwnGain)
	} else if jtDelta < 0 {
		// The slice the junior actually bears (its effective NAV can only
		// drop to zero) is carried as unrecovered loss; any overflow is
		// transferred to the senior below and recorded there.
		borne := units.MinNAV(units.NAV(-jtDelta), led.JTEffectiveNAV)
		led.JTLossCarry = units.AddNAV(led.JTLossCarry, borne)
		led.JTEffectiveNAV -= units.NAV(-jtDelta)
		if led.JTEffectiveNAV < 0 {
			// The junior venue lost more than the junior's residual claim
			// (its effective NAV sits below raw while coverage debt is
			// outstanding). The shortfall lands on the senior as
			// impermanent loss so the stored figures stay balanced.
			deficit := -led.JTEffectiveNAV
			led.JTEffectiveNAV = 0
			led.STEffectiveNAV -= deficit
			led.STCoverageDebt = units.AddNAV(led.STCoverageDebt, deficit)
			res.SeniorLossExcess = units.AddNAV(res.SeniorLossExcess, deficit)
		}
	}
	if led.STEffectiveNAV < 0 {
		// Mirror case: excess senior loss beyond the senior's own residual
		// claim. Conservation puts the offsetting value in the junior's
		// effective NAV, so the shortfall lands there as extra coverage.
		deficit := -led.STEffectiveNAV
		led.STEffectiveNAV = 0
		led.JTEffectiveNAV -= deficit
		led.JTCoverageDebt = units.AddNAV(led.JTCoverageDebt, deficit)
		led.STCoverageDebt = units.SubSaturate(led.STCoverageDebt, deficit)
		res.JuniorAbsorbed = units.AddNAV(res.JuniorAbsorbed, deficit)
		res.SeniorLossExcess = units.SubSaturate(res.SeniorLossExcess, deficit)
	}

	// Step 6: protocol fees accrue only on value above each tranche's prior
	// high-water mark: new senior yield, and junior gains net of coverage
	// recoveries after burning down the junior's own loss carry. The fee
	// leaves both sides of the payer's ledger equally, so conservation of
	// the stored figures survives the extraction.
	stFee := units.MulFraction(stYield, cfg.SeniorFeeRate, units.RoundDown)
	jtGain := units.AddNAV(jtOwnGain, jtShare-res.CoverageRepaid)
	lossRecovered := units.MinNAV(jtGain, led.JTLossCarry)
	led.JTLossCarry -= lossRecovered
	jtFee := units.MulFraction(jtGain-lossRecovered, cfg.JuniorFeeRate, units.RoundDown)

	led.STEffectiveNAV -= stFee
	led.JTEffectiveNAV -= jtFee
	led.STRawNAV = stRaw - stFee
	led.JTRawNAV = jtRaw - jtFee
	led.STFeesOwed = units.AddNAV(led.STFeesOwed, stFee)
	led.JTFeesOwed = units.AddNAV(led.JTFeesOwed, jtFee)
	res.STFeeAccrued = stFee
	res.JTFeeAccrued = jtFee

	// Step 7: market-state machine.
	ltv := tmath.LTV(led.STEffectiveNAV, led.STCoverageDebt, led.JTEffectiveNAV)

	switch led.State {
	case StatePerpetual:
		if res.JuniorAbsorbed > 0 && led.STCoverageDebt == 0 && ltv < cfg.LLTV {
			led.State = StateFixedTerm
			led.FixedTermEnteredAt = now
		}

	case StateFixedTerm:
		switch {
		case led.STCoverageDebt > 0:
			// Loss exceeded the junior's full capacity: the lockout no
			// longer protects anyone. The coverage claim is NOT forgiven.
			led.State = StatePerpetual
			led.FixedTermEnteredAt = 0
		case now >= led.FixedTermEnteredAt+cfg.FixedTermDuration.Milliseconds():
			led.State = StatePerpetual
			led.FixedTermEnteredAt = 0
			if cfg.ForgiveCoverageOnExpiry {
				res.CoverageForgiven = led.JTCoverageDebt
				led.JTCoverageDebt = 0
			}
		}
	}

	led.Version++

	res.STRawNAV = led.STRawNAV
	res.JTRawNAV = led.JTRawNAV
	res.STEffectiveNAV = led.STEffectiveNAV
	res.JTEffectiveNAV = led.JTEffectiveNAV
	res.STCoverageDebt = led.STCoverageDebt
	res.JTCoverageDebt = led.JTCoverageDebt
	res.Utilization = utilization
	res.LTV = ltv
	res.State = led.State
	res.Version = led.Version

	return led, res
}
