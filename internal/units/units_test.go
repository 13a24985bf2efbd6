package units_test

import (
	"testing"

	"TrancheVault/internal/units"
)

func TestMulFraction_Floor(t *testing.T) {
	// 100.000001 * 0.2 = 20.0000002 → floors to 20.000000
	got := units.MulFraction(units.NAV(100_000_001), units.Fraction(200_000), units.RoundDown)
	if got != units.NAV(20_000_000) {
		t.Errorf("got %d, want 20_000_000", got)
	}
}

func TestMulFraction_Up(t *testing.T) {
	got := units.MulFraction(units.NAV(100_000_001), units.Fraction(200_000), units.RoundUp)
	if got != units.NAV(20_000_001) {
		t.Errorf("got %d, want 20_000_001", got)
	}
}

func TestDivFraction(t *testing.T) {
	// 1,000,000 units / 0.2 = 5,000,000 units
	got := units.DivFraction(units.NAV(1_000_000_000_000), units.Fraction(200_000), units.RoundDown)
	if got != units.NAV(5_000_000_000_000) {
		t.Errorf("got %d, want 5_000_000_000_000", got)
	}
}

func TestMulDiv_HalfEven(t *testing.T) {
	// 5 / 2 = 2.5 → rounds to even 2
	got := units.MulDivNAV(5, 1, 2, units.RoundHalfEven)
	if got != 2 {
		t.Errorf("2.5 should round to 2, got %d", got)
	}

	// 7 / 2 = 3.5 → rounds to even 4
	got = units.MulDivNAV(7, 1, 2, units.RoundHalfEven)
	if got != 4 {
		t.Errorf("3.5 should round to 4, got %d", got)
	}
}

func TestMulDiv_NegativeFloor(t *testing.T) {
	// -5 / 2 with floor = -3 (floor rounds toward negative infinity)
	got := units.MulDivNAV(-5, 1, 2, units.RoundDown)
	if got != -3 {
		t.Errorf("got %d, want -3", got)
	}
}

func TestSubSaturate(t *testing.T) {
	if got := units.SubSaturate(100, 30); got != 70 {
		t.Errorf("got %d, want 70", got)
	}
	if got := units.SubSaturate(30, 100); got != 0 {
		t.Errorf("got %d, want 0 (saturated)", got)
	}
}

func TestUnitConfig_Conversion(t *testing.T) {
	// 8-decimal tranche asset → NAV drops two decimals
	cfg := units.UnitConfig{Decimals: 8, Scale: 100_000_000}

	nav := cfg.ToNAV(units.Tranche(123_456_789), units.RoundDown)
	if nav != units.NAV(1_234_567) {
		t.Errorf("ToNAV: got %d, want 1_234_567", nav)
	}

	back := cfg.FromNAV(nav, units.RoundDown)
	if back != units.Tranche(123_456_700) {
		t.Errorf("FromNAV: got %d, want 123_456_700", back)
	}
}

func TestUnitConfig_SameScalePassthrough(t *testing.T) {
	nav := units.DefaultUnitConfig.ToNAV(units.Tranche(42), units.RoundDown)
	if nav != units.NAV(42) {
		t.Errorf("got %d, want 42", nav)
	}
}

func TestAddNAV_OverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on NAV add overflow")
		}
	}()
	units.AddNAV(units.MaxNAV, 1)
}

func TestFractionClamp(t *testing.T) {
	if got := units.Fraction(-5).Clamp(); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := units.Fraction(2_000_000).Clamp(); got != units.One {
		t.Errorf("got %d, want %d", got, units.One)
	}
	if got := units.Fraction(500_000).Clamp(); got != 500_000 {
		t.Errorf("got %d, want 500_000", got)
	}
}

func TestNAVString(t *testing.T) {
	if s := units.NAV(1_234_567).String(); s != "1.234567" {
		t.Errorf("got %q, want 1.234567", s)
	}
	if s := units.NAV(-1_234_567).String(); s != "-1.234567" {
		t.Errorf("got %q, want -1.234567", s)
	}
}

func TestNAVPerShare_EmptySupplyPricesAtOne(t *testing.T) {
	nps := units.NAVPerShare(0, 0, units.RoundDown)
	if nps != units.NAV(units.NAVScale) {
		t.Errorf("got %s, want 1.000000", nps)
	}
}

func TestNAVPerShare_FloatsWithEffectiveNAV(t *testing.T) {
	// 1000 NAV over 800 shares: each whole share is worth 1.25.
	nps := units.NAVPerShare(units.NAV(1000*units.NAVScale), units.Shares(800*units.ShareScale), units.RoundDown)
	if nps != units.NAV(1_250_000) {
		t.Errorf("got %s, want 1.250000", nps)
	}
}

func TestSharesForValue_RoundTrip(t *testing.T) {
	nps := units.NAV(1_250_000)
	s := units.SharesForValue(units.NAV(100*units.NAVScale), nps, units.RoundDown)
	if s != units.Shares(80*units.ShareScale) {
		t.Errorf("shares: got %s, want 80.000000", s)
	}
	v := units.ValueForShares(s, nps, units.RoundDown)
	if v != units.NAV(100*units.NAVScale) {
		t.Errorf("value: got %s, want 100.000000", v)
	}
}
