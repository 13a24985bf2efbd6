package shares_test

import (
	"errors"
	"testing"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/shares"
)

func TestRegistry_MintAndBurn(t *testing.T) {
	r := shares.NewRegistry("mkt-usdc")

	if err := r.Mint(accounting.TrancheSenior, "alice", 1_000_000); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if got := r.BalanceOf(accounting.TrancheSenior, "alice"); got != 1_000_000 {
		t.Errorf("balance: got %s, want 1.000000", got)
	}
	if got := r.TotalSupply(accounting.TrancheSenior); got != 1_000_000 {
		t.Errorf("supply: got %s, want 1.000000", got)
	}

	if err := r.Burn(accounting.TrancheSenior, "alice", 400_000); err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if got := r.TotalSupply(accounting.TrancheSenior); got != 600_000 {
		t.Errorf("supply after burn: got %s, want 0.600000", got)
	}
}

func TestRegistry_TranchesIsolated(t *testing.T) {
	r := shares.NewRegistry("mkt-usdc")
	r.Mint(accounting.TrancheSenior, "alice", 1_000_000)

	if got := r.BalanceOf(accounting.TrancheJunior, "alice"); got != 0 {
		t.Errorf("junior balance: got %s, want 0", got)
	}
	if got := r.TotalSupply(accounting.TrancheJunior); got != 0 {
		t.Errorf("junior supply: got %s, want 0", got)
	}
}

func TestRegistry_BurnInsufficient(t *testing.T) {
	r := shares.NewRegistry("mkt-usdc")
	r.Mint(accounting.TrancheSenior, "alice", 100)

	err := r.Burn(accounting.TrancheSenior, "alice", 200)
	if !errors.Is(err, shares.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestRegistry_EscrowLifecycle(t *testing.T) {
	r := shares.NewRegistry("mkt-usdc")
	r.Mint(accounting.TrancheJunior, "bob", 1_000_000)

	if err := r.Escrow(accounting.TrancheJunior, "bob", 300_000); err != nil {
		t.Fatalf("Escrow: %v", err)
	}
	if got := r.BalanceOf(accounting.TrancheJunior, "bob"); got != 700_000 {
		t.Errorf("free balance: got %s, want 0.700000", got)
	}
	if got := r.EscrowedOf(accounting.TrancheJunior, "bob"); got != 300_000 {
		t.Errorf("escrowed: got %s, want 0.300000", got)
	}
	// Escrow moves custody, not ownership.
	if got := r.TotalSupply(accounting.TrancheJunior); got != 1_000_000 {
		t.Errorf("supply: got %s, want 1.000000", got)
	}

	// A cancelled request releases; a completed one burns.
	if err := r.ReleaseEscrow(accounting.TrancheJunior, "bob", 100_000); err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}
	if err := r.BurnEscrow(accounting.TrancheJunior, "bob", 200_000); err != nil {
		t.Fatalf("BurnEscrow: %v", err)
	}
	if got := r.BalanceOf(accounting.TrancheJunior, "bob"); got != 800_000 {
		t.Errorf("free balance: got %s, want 0.800000", got)
	}
	if got := r.EscrowedOf(accounting.TrancheJunior, "bob"); got != 0 {
		t.Errorf("escrowed: got %s, want 0", got)
	}
	if got := r.TotalSupply(accounting.TrancheJunior); got != 800_000 {
		t.Errorf("supply: got %s, want 0.800000", got)
	}
}

func TestRegistry_EscrowInsufficient(t *testing.T) {
	r := shares.NewRegistry("mkt-usdc")
	r.Mint(accounting.TrancheJunior, "bob", 100)

	if err := r.Escrow(accounting.TrancheJunior, "bob", 200); !errors.Is(err, shares.ErrInsufficientBalance) {
		t.Errorf("Escrow: got %v, want ErrInsufficientBalance", err)
	}
	if err := r.BurnEscrow(accounting.TrancheJunior, "bob", 50); !errors.Is(err, shares.ErrInsufficientEscrow) {
		t.Errorf("BurnEscrow: got %v, want ErrInsufficientEscrow", err)
	}
}

func TestRegistry_RecordsAndRestore(t *testing.T) {
	r := shares.NewRegistry("mkt-usdc")
	r.Mint(accounting.TrancheSenior, "alice", 1_000_000)
	r.Mint(accounting.TrancheSenior, "bob", 500_000)
	r.Escrow(accounting.TrancheSenior, "bob", 500_000)

	recs := r.Records(accounting.TrancheSenior)
	if len(recs) != 2 {
		t.Fatalf("records: got %d, want 2", len(recs))
	}

	restored := shares.NewRegistry("mkt-usdc")
	for _, rec := range recs {
		restored.Restore(rec)
	}
	if got := restored.TotalSupply(accounting.TrancheSenior); got != 1_500_000 {
		t.Errorf("restored supply: got %s, want 1.500000", got)
	}
	if got := restored.BalanceOf(accounting.TrancheSenior, "alice"); got != 1_000_000 {
		t.Errorf("restored alice: got %s, want 1.000000", got)
	}
	if got := restored.EscrowedOf(accounting.TrancheSenior, "bob"); got != 500_000 {
		t.Errorf("restored bob escrow: got %s, want 0.500000", got)
	}
	if got := restored.TotalEscrowed(accounting.TrancheSenior); got != 500_000 {
		t.Errorf("restored escrow total: got %s, want 0.500000", got)
	}
}
