package ydm_test

import (
	"testing"

	"TrancheVault/internal/units"
	"TrancheVault/internal/ydm"
)

func TestFlatShare(t *testing.T) {
	m, err := ydm.NewFlatShare(units.Fraction(250_000))
	if err != nil {
		t.Fatalf("NewFlatShare: %v", err)
	}
	if got := m.JuniorYieldShare(ydm.Inputs{}); got != units.Fraction(250_000) {
		t.Errorf("got %d, want 250_000", got)
	}
}

func TestFlatShare_RejectsOutOfRange(t *testing.T) {
	if _, err := ydm.NewFlatShare(units.Fraction(1_000_001)); err == nil {
		t.Error("share above 1.0 should be rejected")
	}
	if _, err := ydm.NewFlatShare(units.Fraction(-1)); err == nil {
		t.Error("negative share should be rejected")
	}
}

func TestUtilizationCurve_Endpoints(t *testing.T) {
	// base 10%, kink-share 30% at 80% utilization, max 60%
	m, err := ydm.NewUtilizationCurve(
		units.Fraction(100_000),
		units.Fraction(300_000),
		units.Fraction(600_000),
		units.Fraction(800_000),
	)
	if err != nil {
		t.Fatalf("NewUtilizationCurve: %v", err)
	}

	if got := m.JuniorYieldShare(ydm.Inputs{Utilization: 0}); got != units.Fraction(100_000) {
		t.Errorf("at zero utilization: got %d, want base 100_000", got)
	}
	if got := m.JuniorYieldShare(ydm.Inputs{Utilization: units.Fraction(800_000)}); got != units.Fraction(300_000) {
		t.Errorf("at the kink: got %d, want 300_000", got)
	}
	if got := m.JuniorYieldShare(ydm.Inputs{Utilization: units.One}); got != units.Fraction(600_000) {
		t.Errorf("fully utilized: got %d, want max 600_000", got)
	}
}

func TestUtilizationCurve_MidSlopes(t *testing.T) {
	m, _ := ydm.NewUtilizationCurve(
		units.Fraction(100_000),
		units.Fraction(300_000),
		units.Fraction(600_000),
		units.Fraction(800_000),
	)

	// Halfway to the kink: base + (kink-base)/2 = 20%
	if got := m.JuniorYieldShare(ydm.Inputs{Utilization: units.Fraction(400_000)}); got != units.Fraction(200_000) {
		t.Errorf("got %d, want 200_000", got)
	}

	// Halfway through the excess region: 30% + 15% = 45%
	if got := m.JuniorYieldShare(ydm.Inputs{Utilization: units.Fraction(900_000)}); got != units.Fraction(450_000) {
		t.Errorf("got %d, want 450_000", got)
	}
}

func TestUtilizationCurve_RejectsBadShape(t *testing.T) {
	if _, err := ydm.NewUtilizationCurve(300_000, 100_000, 600_000, 800_000); err == nil {
		t.Error("base > kink share should be rejected")
	}
	if _, err := ydm.NewUtilizationCurve(100_000, 300_000, 600_000, units.One); err == nil {
		t.Error("kink point at 1.0 should be rejected")
	}
}
