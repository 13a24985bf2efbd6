package tmath_test

import (
	"testing"

	"TrancheVault/internal/tmath"
	"TrancheVault/internal/units"
)

func TestUtilization_Basic(t *testing.T) {
	// senior 300k, junior 1M, coverage 0.2 → required 60k / 1M = 6%
	u := tmath.Utilization(
		units.NAV(300_000*units.NAVScale),
		units.NAV(1_000_000*units.NAVScale),
		units.Fraction(200_000),
	)
	if u != units.Fraction(60_000) {
		t.Errorf("got %d, want 60_000", u)
	}
}

func TestUtilization_EmptyJunior(t *testing.T) {
	u := tmath.Utilization(units.NAV(100), 0, units.Fraction(200_000))
	if u != units.One {
		t.Errorf("empty junior with senior exposure should saturate, got %d", u)
	}

	u = tmath.Utilization(0, 0, units.Fraction(200_000))
	if u != 0 {
		t.Errorf("empty market should have zero utilization, got %d", u)
	}
}

func TestLTV_Guard(t *testing.T) {
	if got := tmath.LTV(0, 0, 0); got != 0 {
		t.Errorf("empty market LTV should be 0, got %d", got)
	}
}

func TestLTV_IncludesImpermanentLoss(t *testing.T) {
	// (250k + 50k) / 1M = 0.3
	got := tmath.LTV(
		units.NAV(250_000*units.NAVScale),
		units.NAV(50_000*units.NAVScale),
		units.NAV(1_000_000*units.NAVScale),
	)
	if got != units.Fraction(300_000) {
		t.Errorf("got %d, want 300_000", got)
	}
}

func TestSeniorCapacity(t *testing.T) {
	// 1M junior / 0.2 = 5M senior capacity
	got := tmath.SeniorCapacity(units.NAV(1_000_000*units.NAVScale), units.Fraction(200_000))
	if got != units.NAV(5_000_000*units.NAVScale) {
		t.Errorf("got %d, want 5M", got)
	}
}

func TestPledgedCoverage_RoundsUp(t *testing.T) {
	// 1 micro-unit of senior at 0.2 coverage still pledges 1 micro-unit
	got := tmath.PledgedCoverage(units.NAV(1), units.Fraction(200_000))
	if got != units.NAV(1) {
		t.Errorf("got %d, want 1 (rounded up)", got)
	}
}
