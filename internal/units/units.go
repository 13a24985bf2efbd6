package units

import (
	"fmt"
	"math"
	"math/big"
	"sync"
)

// NAV is an amount in the common valuation unit (6 decimal places).
// Tranche is an amount in a tranche asset's native precision.
// The two are distinct types so a tranche amount can never be fed into
// NAV arithmetic without an explicit conversion through a UnitConfig.
type NAV int64

type Tranche int64

// Shares is an amount of tranche share tokens (6 decimal places). Shares are
// a claim on a tranche's effective NAV, so their price floats with it.
type Shares int64

// Fraction is a fixed-point ratio scaled by FractionScale.
// Coverage ratios, betas, fee rates, and yield shares all use this scale.
type Fraction int64

const (
	// NAVDecimals is the precision of the common valuation unit.
	NAVDecimals = 6
	// NAVScale is 10^NAVDecimals.
	NAVScale = 1_000_000

	// FractionScale represents 1.0 (100%).
	FractionScale = 1_000_000

	// ShareScale is one whole share.
	ShareScale = 1_000_000

	// MaxNAV is the largest representable NAV amount.
	MaxNAV = NAV(math.MaxInt64)
)

// One is the Fraction representing 1.0.
const One = Fraction(FractionScale)

// UnitConfig describes a tranche asset's native precision and how it maps
// into the NAV unit. Tranche assets are valued 1:1 against the NAV unit;
// only the decimal precision differs.
type UnitConfig struct {
	Decimals int
	Scale    int64 // 10^Decimals
}

// DefaultUnitConfig is a 6-decimal tranche asset (same layout as the NAV unit).
var DefaultUnitConfig = UnitConfig{Decimals: 6, Scale: 1_000_000}

// RoundingMode selects how division results are rounded.
type RoundingMode int

const (
	RoundDown RoundingMode = iota // floor (default for amounts owed by the junior)
	RoundUp
	RoundHalfEven // banker's rounding
)

// bigPool recycles big.Int intermediates across syncs.
var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// mulDiv computes a * b / denom with 128-bit intermediates and the given
// rounding. Panics if denom is zero or the result overflows int64; both are
// precondition violations, not business errors.
func mulDiv(a, b, denom int64, mode RoundingMode) int64 {
	if denom == 0 {
		panic("units: division by zero")
	}

	num := getBig()
	num.Mul(big.NewInt(a), big.NewInt(b))

	quo := getBig()
	rem := getBig()
	quo.QuoRem(num, big.NewInt(denom), rem)

	if !quo.IsInt64() {
		panic(fmt.Sprintf("units: mulDiv overflow: %d * %d / %d", a, b, denom))
	}
	result := quo.Int64()
	remainder := rem.Int64()

	// Go's QuoRem truncates toward zero; adjust per requested mode.
	switch mode {
	case RoundDown:
		if remainder != 0 && (num.Sign() < 0) != (denom < 0) {
			result--
		}
	case RoundUp:
		if remainder != 0 && (num.Sign() < 0) == (denom < 0) {
			result++
		}
	case RoundHalfEven:
		absRem := remainder
		if absRem < 0 {
			absRem = -absRem
		}
		absDen := denom
		if absDen < 0 {
			absDen = -absDen
		}
		twice := absRem * 2
		if twice > absDen || (twice == absDen && result%2 != 0) {
			if result >= 0 {
				result++
			} else {
				result--
			}
		}
	}

	putBig(num)
	putBig(quo)
	putBig(rem)

	return result
}

// MulFraction scales a NAV amount by a fraction.
func MulFraction(a NAV, f Fraction, mode RoundingMode) NAV {
	return NAV(mulDiv(int64(a), int64(f), FractionScale, mode))
}

// DivFraction divides a NAV amount by a fraction. Panics if f is zero.
func DivFraction(a NAV, f Fraction, mode RoundingMode) NAV {
	return NAV(mulDiv(int64(a), FractionScale, int64(f), mode))
}

// MulDivNAV computes a * b / denom over NAV amounts.
func MulDivNAV(a, b, denom NAV, mode RoundingMode) NAV {
	return NAV(mulDiv(int64(a), int64(b), int64(denom), mode))
}

// AddNAV adds two NAV amounts, panicking on overflow.
func AddNAV(a, b NAV) NAV {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		panic(fmt.Sprintf("units: NAV add overflow: %d + %d", a, b))
	}
	return s
}

// SubSaturate subtracts b from a, flooring at zero.
func SubSaturate(a, b NAV) NAV {
	if b >= a {
		return 0
	}
	return a - b
}

// MinNAV returns the smaller of two NAV amounts.
func MinNAV(a, b NAV) NAV {
	if a < b {
		return a
	}
	return b
}

// MaxNAVOf returns the larger of two NAV amounts.
func MaxNAVOf(a, b NAV) NAV {
	if a > b {
		return a
	}
	return b
}

// ToNAV converts a tranche-native amount into NAV units by rescaling decimals.
func (c UnitConfig) ToNAV(a Tranche, mode RoundingMode) NAV {
	if c.Scale == NAVScale {
		return NAV(a)
	}
	return NAV(mulDiv(int64(a), NAVScale, c.Scale, mode))
}

// FromNAV converts a NAV amount into tranche-native units.
func (c UnitConfig) FromNAV(a NAV, mode RoundingMode) Tranche {
	if c.Scale == NAVScale {
		return Tranche(a)
	}
	return Tranche(mulDiv(int64(a), c.Scale, NAVScale, mode))
}

// NAVPerShare returns the NAV value of one whole share given a tranche's
// effective NAV and outstanding supply. An empty tranche prices at 1.0 so
// the first depositor mints 1:1.
func NAVPerShare(eff NAV, supply Shares, mode RoundingMode) NAV {
	if supply == 0 {
		return NAV(NAVScale)
	}
	return NAV(mulDiv(int64(eff), ShareScale, int64(supply), mode))
}

// SharesForValue converts a NAV amount into shares at the given share price.
func SharesForValue(value, navPerShare NAV, mode RoundingMode) Shares {
	return Shares(mulDiv(int64(value), ShareScale, int64(navPerShare), mode))
}

// ValueForShares converts shares into a NAV amount at the given share price.
func ValueForShares(s Shares, navPerShare NAV, mode RoundingMode) NAV {
	return NAV(mulDiv(int64(s), int64(navPerShare), ShareScale, mode))
}

// MinShares returns the smaller of two share amounts.
func MinShares(a, b Shares) Shares {
	if a < b {
		return a
	}
	return b
}

// Clamp bounds f into [0, One].
func (f Fraction) Clamp() Fraction {
	if f < 0 {
		return 0
	}
	if f > One {
		return One
	}
	return f
}

func (a NAV) String() string {
	return fixedString(int64(a), NAVDecimals)
}

func (a Tranche) String() string {
	return fmt.Sprintf("%d", int64(a))
}

func (s Shares) String() string {
	return fixedString(int64(s), 6)
}

func (f Fraction) String() string {
	return fixedString(int64(f), 6)
}

func fixedString(v int64, decimals int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	scale := int64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	s := fmt.Sprintf("%d.%0*d", v/scale, decimals, v%scale)
	if neg {
		return "-" + s
	}
	return s
}
