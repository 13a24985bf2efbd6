// Package ydm defines the pluggable yield-distribution model: given the
// current market state, what fraction of senior-tranche yield is owed to the
// junior tranche. Models are pure functions of their inputs, consulted once
// per accounting sync before any mutation, and are fixed per market at
// construction time.
package ydm

import (
	"fmt"

	"TrancheVault/internal/units"
)

// Inputs is the read-only state a model may consult.
type Inputs struct {
	FixedTerm     bool
	SeniorEffNAV  units.NAV
	JuniorEffNAV  units.NAV
	Beta          units.Fraction
	CoverageRatio units.Fraction
	Utilization   units.Fraction
}

// Model computes the junior tranche's share of senior yield, in [0, 1].
type Model interface {
	Name() string
	JuniorYieldShare(in Inputs) units.Fraction
}

// FlatShare pays the junior tranche a constant fraction of senior yield.
type FlatShare struct {
	Share units.Fraction
}

func NewFlatShare(share units.Fraction) (*FlatShare, error) {
	if share < 0 || share > units.One {
		return nil, fmt.Errorf("ydm: flat share %d outside [0, %d]", share, units.One)
	}
	return &FlatShare{Share: share}, nil
}

func (m *FlatShare) Name() string { return "flat" }

func (m *FlatShare) JuniorYieldShare(Inputs) units.Fraction {
	return m.Share
}

// UtilizationCurve raises the junior share with the senior's utilization of
// junior coverage capacity, kinked at an optimal utilization point the way
// lending rate models are: below the kink the share climbs linearly from
// BaseShare to KinkShare, above it from KinkShare to MaxShare. Compensates
// the junior more as its capital carries more senior risk.
type UtilizationCurve struct {
	BaseShare units.Fraction
	KinkShare units.Fraction
	MaxShare  units.Fraction
	Kink      units.Fraction
}

func NewUtilizationCurve(base, kink, max, kinkPoint units.Fraction) (*UtilizationCurve, error) {
	if base < 0 || base > kink || kink > max || max > units.One {
		return nil, fmt.Errorf("ydm: curve shares must satisfy 0 <= base <= kink <= max <= 1 (got %d, %d, %d)", base, kink, max)
	}
	if kinkPoint <= 0 || kinkPoint >= units.One {
		return nil, fmt.Errorf("ydm: kink point %d outside (0, 1)", kinkPoint)
	}
	return &UtilizationCurve{BaseShare: base, KinkShare: kink, MaxShare: max, Kink: kinkPoint}, nil
}

func (m *UtilizationCurve) Name() string { return "utilization_curve" }

func (m *UtilizationCurve) JuniorYieldShare(in Inputs) units.Fraction {
	u := in.Utilization.Clamp()

	if u <= m.Kink {
		// base + (kink_share - base) * u / kink
		span := int64(m.KinkShare - m.BaseShare)
		return m.BaseShare + units.Fraction(span*int64(u)/int64(m.Kink))
	}

	// kink_share + (max - kink_share) * (u - kink) / (1 - kink)
	span := int64(m.MaxShare - m.KinkShare)
	excess := int64(u - m.Kink)
	denom := int64(units.One - m.Kink)
	return m.KinkShare + units.Fraction(span*excess/denom)
}
