package kernel

import (
	"math"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/tmath"
	"TrancheVault/internal/units"
)

// UnlimitedTranche is returned by views the engine does not bound; the
// venue's own capacity limits apply elsewhere.
const UnlimitedTranche = units.Tranche(math.MaxInt64)

// MaxDeposit runs a dry-run sync and reports the largest deposit the
// coverage and state gates would currently admit, in tranche units.
func (m *Market) MaxDeposit(t accounting.TrancheID) units.Tranche {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, jt := m.rawNAVsLocked()
	res := m.acct.DryRun(st, jt, m.clock())

	switch t {
	case accounting.TrancheSenior:
		capacity := tmath.SeniorCapacity(res.JTEffectiveNAV, m.acct.Config().CoverageRatio)
		headroom := units.SubSaturate(capacity, res.STEffectiveNAV)
		return m.venues[t].Units().FromNAV(headroom, units.RoundDown)
	default:
		if res.State == accounting.StateFixedTerm {
			return 0
		}
		return UnlimitedTranche
	}
}

// MaxRedeem runs a dry-run sync and reports the largest share amount the
// account could currently redeem (senior) or request (junior).
func (m *Market) MaxRedeem(t accounting.TrancheID, account string) units.Shares {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, jt := m.rawNAVsLocked()
	res := m.acct.DryRun(st, jt, m.clock())

	if t == accounting.TrancheSenior {
		if res.State == accounting.StateFixedTerm {
			return 0
		}
		return m.registry.BalanceOf(t, account)
	}
	return m.juniorMaxRedeem(res.STEffectiveNAV, res.JTEffectiveNAV, account)
}

// MaxWithdraw is MaxRedeem converted to tranche units at the dry-run share
// price.
func (m *Market) MaxWithdraw(t accounting.TrancheID, account string) units.Tranche {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, jt := m.rawNAVsLocked()
	res := m.acct.DryRun(st, jt, m.clock())

	var max units.Shares
	eff := res.STEffectiveNAV
	if t == accounting.TrancheSenior {
		if res.State == accounting.StateFixedTerm {
			return 0
		}
		max = m.registry.BalanceOf(t, account)
	} else {
		eff = res.JTEffectiveNAV
		max = m.juniorMaxRedeem(res.STEffectiveNAV, res.JTEffectiveNAV, account)
	}
	if max == 0 {
		return 0
	}
	nps := units.NAVPerShare(eff, m.registry.TotalSupply(t), units.RoundDown)
	return m.venues[t].Units().FromNAV(units.ValueForShares(max, nps, units.RoundDown), units.RoundDown)
}

// NAVPerShare reports the current share price for a tranche from a dry-run
// sync.
func (m *Market) NAVPerShare(t accounting.TrancheID) units.NAV {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, jt := m.rawNAVsLocked()
	res := m.acct.DryRun(st, jt, m.clock())

	eff := res.STEffectiveNAV
	if t == accounting.TrancheJunior {
		eff = res.JTEffectiveNAV
	}
	return units.NAVPerShare(eff, m.registry.TotalSupply(t), units.RoundDown)
}

// juniorMaxRedeem shrinks the account's free balance by the fraction of
// junior effective NAV currently pledged as senior coverage. Rounding is up
// on the pledged slice so the junior's free liquidity is never overstated.
func (m *Market) juniorMaxRedeem(stEff, jtEff units.NAV, account string) units.Shares {
	balance := m.registry.BalanceOf(accounting.TrancheJunior, account)
	if balance == 0 {
		return 0
	}

	pledged := tmath.PledgedCoverage(stEff, m.acct.Config().CoverageRatio)
	if pledged == 0 {
		return balance
	}
	if jtEff == 0 || pledged >= jtEff {
		return 0
	}

	locked := units.Shares(units.MulDivNAV(units.NAV(balance), pledged, jtEff, units.RoundUp))
	if locked >= balance {
		return 0
	}
	return balance - locked
}

// juniorMaxRedeemLocked is the committed-ledger variant used inside
// RequestRedeem after the pre-operation sync.
func (m *Market) juniorMaxRedeemLocked(led accounting.Ledger, account string) units.Shares {
	return m.juniorMaxRedeem(led.STEffectiveNAV, led.JTEffectiveNAV, account)
}
