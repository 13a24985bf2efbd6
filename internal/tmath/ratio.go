// Package tmath holds the pure ratio functions shared by the accounting
// engine and the deposit-gating checks.
package tmath

import (
	"math"

	"TrancheVault/internal/units"
)

// Utilization returns how much of the junior tranche's coverage capacity the
// senior tranche is currently consuming, as a fraction of 1.0. Capacity is
// coverageRatio * juniorEffective; demand is the senior effective NAV scaled
// by the coverage ratio. With no junior capital the ratio saturates at 1.0
// when any senior capital exists, 0 otherwise.
func Utilization(seniorEff, juniorEff units.NAV, coverageRatio units.Fraction) units.Fraction {
	required := units.MulFraction(seniorEff, coverageRatio, units.RoundUp)
	if juniorEff == 0 {
		if required == 0 {
			return 0
		}
		return units.One
	}
	u := units.Fraction(units.MulDivNAV(required, units.NAV(units.FractionScale), juniorEff, units.RoundDown))
	return u.Clamp()
}

// LTV returns the loan-to-value ratio used for the fixed-term gate:
// (senior effective NAV + senior impermanent loss) over junior effective NAV.
// When the junior tranche holds nothing the ratio is 0 if the senior also
// holds nothing, otherwise saturated.
func LTV(seniorEff, seniorImpLoss, juniorEff units.NAV) units.Fraction {
	exposure := units.AddNAV(seniorEff, seniorImpLoss)
	if juniorEff == 0 {
		if exposure == 0 {
			return 0
		}
		return units.Fraction(math.MaxInt64)
	}
	return units.Fraction(units.MulDivNAV(exposure, units.NAV(units.FractionScale), juniorEff, units.RoundDown))
}

// SeniorCapacity returns the largest senior effective NAV the current junior
// effective NAV can cover: juniorEff / coverageRatio, floored so rounding
// never overstates capacity.
func SeniorCapacity(juniorEff units.NAV, coverageRatio units.Fraction) units.NAV {
	if coverageRatio <= 0 {
		return units.MaxNAV
	}
	return units.DivFraction(juniorEff, coverageRatio, units.RoundDown)
}

// PledgedCoverage returns the slice of junior effective NAV currently pledged
// as coverage for the senior tranche, rounded up so the junior's free balance
// is never overstated.
func PledgedCoverage(seniorEff units.NAV, coverageRatio units.Fraction) units.NAV {
	return units.MulFraction(seniorEff, coverageRatio, units.RoundUp)
}
