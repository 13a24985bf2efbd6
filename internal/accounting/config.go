package accounting

import (
	"fmt"
	"time"

	"TrancheVault/internal/units"
)

// TrancheID identifies one side of the capital structure.
type TrancheID int32

const (
	TrancheSenior TrancheID = iota
	TrancheJunior
)

func (t TrancheID) String() string {
	switch t {
	case TrancheSenior:
		return "senior"
	case TrancheJunior:
		return "junior"
	default:
		return "unknown"
	}
}

// ParseTrancheID maps the wire names back to a TrancheID.
func ParseTrancheID(s string) (TrancheID, error) {
	switch s {
	case "senior":
		return TrancheSenior, nil
	case "junior":
		return TrancheJunior, nil
	default:
		return 0, fmt.Errorf("unknown tranche %q", s)
	}
}

// MarketState is the two-state machine driven by the sync routine.
type MarketState int32

const (
	// StatePerpetual is normal elastic operation.
	StatePerpetual MarketState = iota
	// StateFixedTerm is the temporary lockout entered when the junior
	// tranche extends coverage: junior deposits and senior redemptions are
	// gated until the term expires.
	StateFixedTerm
)

func (s MarketState) String() string {
	switch s {
	case StatePerpetual:
		return "PERPETUAL"
	case StateFixedTerm:
		return "FIXED_TERM"
	default:
		return "UNKNOWN"
	}
}

// ParseMarketState maps the wire names back to a MarketState.
func ParseMarketState(s string) (MarketState, error) {
	switch s {
	case "PERPETUAL":
		return StatePerpetual, nil
	case "FIXED_TERM":
		return StateFixedTerm, nil
	default:
		return 0, fmt.Errorf("unknown market state %q", s)
	}
}

// MaxFeeRate caps per-tranche protocol fee rates at 50%.
const MaxFeeRate = units.Fraction(500_000)

// MarketConfig is immutable per market. Fee rates and the yield model's
// parameters may be updated through a config event, which replaces the whole
// struct under the kernel's write lock.
type MarketConfig struct {
	MarketID string

	// CoverageRatio is the fraction of senior effective NAV the junior
	// tranche must be able to absorb.
	CoverageRatio units.Fraction

	// Beta is the junior tranche's exposure to the same stress affecting
	// the senior: 0 when the junior sits in a risk-free venue, 1 when fully
	// co-exposed. Co-exposure reduces how much loss is routed through the
	// coverage transfer, since the junior is already taking it directly.
	Beta units.Fraction

	SeniorFeeRate units.Fraction
	JuniorFeeRate units.Fraction

	// RedemptionDelay is the mandatory wait between a junior redemption
	// request and its claim.
	RedemptionDelay time.Duration

	// FixedTermDuration is how long the FIXED_TERM lockout lasts.
	FixedTermDuration time.Duration

	// LLTV gates entry into FIXED_TERM: the lockout only engages while the
	// senior's loan-to-value against the junior is below this threshold.
	LLTV units.Fraction

	// ForgiveCoverageOnExpiry clears the junior's coverage claim when a
	// fixed term completes. This is a policy decision, not an accident:
	// when false the claim carries forward and is repaid out of future
	// senior gains.
	ForgiveCoverageOnExpiry bool

	// FeeRecipient receives minted fee shares.
	FeeRecipient string
}

// Validate rejects configuration violations at construction time, so they
// are never reachable mid-operation.
func (c MarketConfig) Validate() error {
	if c.MarketID == "" {
		return fmt.Errorf("market config: empty market id")
	}
	if c.CoverageRatio <= 0 || c.CoverageRatio > units.One {
		return fmt.Errorf("market %s: coverage ratio %s outside (0, 1]", c.MarketID, c.CoverageRatio)
	}
	if c.Beta < 0 || c.Beta > units.One {
		return fmt.Errorf("market %s: beta %s outside [0, 1]", c.MarketID, c.Beta)
	}
	if c.SeniorFeeRate < 0 || c.SeniorFeeRate > MaxFeeRate {
		return fmt.Errorf("market %s: senior fee rate %s above max %s", c.MarketID, c.SeniorFeeRate, MaxFeeRate)
	}
	if c.JuniorFeeRate < 0 || c.JuniorFeeRate > MaxFeeRate {
		return fmt.Errorf("market %s: junior fee rate %s above max %s", c.MarketID, c.JuniorFeeRate, MaxFeeRate)
	}
	if c.RedemptionDelay <= 0 {
		return fmt.Errorf("market %s: redemption delay must be positive", c.MarketID)
	}
	if c.FixedTermDuration <= 0 {
		return fmt.Errorf("market %s: fixed-term duration must be positive", c.MarketID)
	}
	if c.LLTV <= 0 {
		return fmt.Errorf("market %s: lltv must be positive", c.MarketID)
	}
	if c.FeeRecipient == "" {
		return fmt.Errorf("market %s: empty fee recipient", c.MarketID)
	}
	return nil
}
