package venue_test

import (
	"errors"
	"testing"

	"TrancheVault/internal/units"
	"TrancheVault/internal/venue"
)

// ============================================================================
// Test: Vault
// ============================================================================

func TestVault_DepositWithdraw(t *testing.T) {
	v := venue.NewVault("vault-a", units.DefaultUnitConfig)

	if err := v.Deposit(1_000_000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := v.Withdraw(400_000); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := v.RawNAV(); got != 600_000 {
		t.Errorf("RawNAV: got %s, want 600000", got)
	}
}

func TestVault_WithdrawInsufficient(t *testing.T) {
	v := venue.NewVault("vault-a", units.DefaultUnitConfig)
	v.Deposit(100)

	if err := v.Withdraw(200); !errors.Is(err, venue.ErrInsufficientValue) {
		t.Errorf("got %v, want ErrInsufficientValue", err)
	}
}

func TestVault_MarkSetsValue(t *testing.T) {
	v := venue.NewVault("vault-a", units.DefaultUnitConfig)
	v.Deposit(1_000_000)

	applied, err := v.ApplyMark(venue.Mark{VenueID: "vault-a", Sequence: 1, Value: 1_050_000})
	if err != nil || !applied {
		t.Fatalf("ApplyMark: applied=%v err=%v", applied, err)
	}
	if got := v.RawNAV(); got != 1_050_000 {
		t.Errorf("RawNAV: got %s, want 1050000", got)
	}
}

func TestVault_StaleMarkDropped(t *testing.T) {
	v := venue.NewVault("vault-a", units.DefaultUnitConfig)
	v.ApplyMark(venue.Mark{VenueID: "vault-a", Sequence: 5, Value: 500})

	applied, err := v.ApplyMark(venue.Mark{VenueID: "vault-a", Sequence: 5, Value: 900})
	if err != nil {
		t.Fatalf("ApplyMark: %v", err)
	}
	if applied {
		t.Error("mark with a repeated sequence should be dropped")
	}
	if got := v.RawNAV(); got != 500 {
		t.Errorf("RawNAV after stale mark: got %s, want 500", got)
	}
	if got := v.LastSequence(); got != 5 {
		t.Errorf("LastSequence: got %d, want 5", got)
	}
}

func TestVault_MarkForOtherVenueRejected(t *testing.T) {
	v := venue.NewVault("vault-a", units.DefaultUnitConfig)

	_, err := v.ApplyMark(venue.Mark{VenueID: "vault-b", Sequence: 1, Value: 100})
	if !errors.Is(err, venue.ErrUnknownVenue) {
		t.Errorf("got %v, want ErrUnknownVenue", err)
	}
}

func TestVault_StateRoundTrip(t *testing.T) {
	v := venue.NewVault("vault-a", units.DefaultUnitConfig)
	v.Deposit(1_000_000)
	v.ApplyMark(venue.Mark{VenueID: "vault-a", Sequence: 7, Value: 1_050_000})

	fresh := venue.NewVault("vault-a", units.DefaultUnitConfig)
	if err := fresh.RestoreState(v.State()); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}
	if got := fresh.RawNAV(); got != 1_050_000 {
		t.Errorf("RawNAV after restore: got %s, want 1050000", got)
	}
	if got := fresh.LastSequence(); got != 7 {
		t.Errorf("LastSequence after restore: got %d, want 7", got)
	}
}

func TestVault_RestoreStateWrongVenue(t *testing.T) {
	v := venue.NewVault("vault-a", units.DefaultUnitConfig)

	err := v.RestoreState(venue.State{VenueID: "vault-b", Value: 100})
	if !errors.Is(err, venue.ErrUnknownVenue) {
		t.Errorf("got %v, want ErrUnknownVenue", err)
	}
}

// ============================================================================
// Test: Lending
// ============================================================================

func TestLending_ValueTracksIndex(t *testing.T) {
	l := venue.NewLending("lend-a", units.DefaultUnitConfig)
	l.Deposit(1_000_000)

	if got := l.RawNAV(); got != 1_000_000 {
		t.Errorf("RawNAV at index 1.0: got %s, want 1000000", got)
	}

	// 5% interest accrues through the index.
	l.ApplyMark(venue.Mark{VenueID: "lend-a", Sequence: 1, Index: 1_050_000})
	if got := l.RawNAV(); got != 1_050_000 {
		t.Errorf("RawNAV at index 1.05: got %s, want 1050000", got)
	}

	// Bad debt socialization marks the index down.
	l.ApplyMark(venue.Mark{VenueID: "lend-a", Sequence: 2, Index: 900_000})
	if got := l.RawNAV(); got != 900_000 {
		t.Errorf("RawNAV at index 0.9: got %s, want 900000", got)
	}
}

func TestLending_WithdrawAtAccruedIndex(t *testing.T) {
	l := venue.NewLending("lend-a", units.DefaultUnitConfig)
	l.Deposit(1_000_000)
	l.ApplyMark(venue.Mark{VenueID: "lend-a", Sequence: 1, Index: 1_250_000})

	if err := l.Withdraw(1_250_000); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := l.RawNAV(); got != 0 {
		t.Errorf("RawNAV after full withdrawal: got %s, want 0", got)
	}
}

func TestLending_NonPositiveIndexRejected(t *testing.T) {
	l := venue.NewLending("lend-a", units.DefaultUnitConfig)

	if _, err := l.ApplyMark(venue.Mark{VenueID: "lend-a", Sequence: 1, Index: 0}); err == nil {
		t.Error("zero index should be rejected")
	}
}

func TestLending_StateRoundTrip(t *testing.T) {
	l := venue.NewLending("lend-a", units.DefaultUnitConfig)
	l.Deposit(1_000_000)
	l.ApplyMark(venue.Mark{VenueID: "lend-a", Sequence: 4, Index: 1_250_000})

	fresh := venue.NewLending("lend-a", units.DefaultUnitConfig)
	if err := fresh.RestoreState(l.State()); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}
	if got := fresh.RawNAV(); got != 1_250_000 {
		t.Errorf("RawNAV after restore: got %s, want 1250000", got)
	}
	if got := fresh.Index(); got != 1_250_000 {
		t.Errorf("Index after restore: got %s, want 1.250000", got)
	}
	if got := fresh.LastSequence(); got != 4 {
		t.Errorf("LastSequence after restore: got %d, want 4", got)
	}

	if err := fresh.RestoreState(venue.State{VenueID: "lend-a", Value: 100, Index: 0}); err == nil {
		t.Error("non-positive restored index should be rejected")
	}
}

func TestLending_StaleMarkDropped(t *testing.T) {
	l := venue.NewLending("lend-a", units.DefaultUnitConfig)
	l.ApplyMark(venue.Mark{VenueID: "lend-a", Sequence: 3, Index: 1_100_000})

	applied, err := l.ApplyMark(venue.Mark{VenueID: "lend-a", Sequence: 2, Index: 1_200_000})
	if err != nil || applied {
		t.Errorf("out-of-order mark: applied=%v err=%v, want dropped", applied, err)
	}
	if got := l.Index(); got != 1_100_000 {
		t.Errorf("Index: got %s, want 1.100000", got)
	}
}
