// Package shares tracks share supply and per-account balances for both
// tranches of a market. Shares are the unit of ownership over a tranche's
// effective NAV; the registry knows nothing about pricing, only issuance,
// escrow and burn.
package shares

import (
	"errors"
	"fmt"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/units"
)

var (
	ErrInsufficientBalance = errors.New("insufficient share balance")
	ErrInsufficientEscrow  = errors.New("insufficient escrowed shares")
)

type side struct {
	supply      units.Shares
	balances    map[string]units.Shares
	escrowed    map[string]units.Shares
	escrowTotal units.Shares
}

// Registry is the in-memory share ledger for one market. It is not safe for
// concurrent use; the kernel serializes all access under its operation lock.
type Registry struct {
	marketID string
	sides    [2]side
}

func NewRegistry(marketID string) *Registry {
	r := &Registry{marketID: marketID}
	for i := range r.sides {
		r.sides[i].balances = make(map[string]units.Shares)
		r.sides[i].escrowed = make(map[string]units.Shares)
	}
	return r
}

func (r *Registry) side(t accounting.TrancheID) *side {
	return &r.sides[t]
}

// TotalSupply includes escrowed shares: escrow moves custody, not ownership,
// so escrowed shares still dilute the share price.
func (r *Registry) TotalSupply(t accounting.TrancheID) units.Shares {
	return r.side(t).supply
}

// BalanceOf returns the account's free (non-escrowed) balance.
func (r *Registry) BalanceOf(t accounting.TrancheID, account string) units.Shares {
	return r.side(t).balances[account]
}

// EscrowedOf returns the account's shares locked behind redemption requests.
func (r *Registry) EscrowedOf(t accounting.TrancheID, account string) units.Shares {
	return r.side(t).escrowed[account]
}

// TotalEscrowed returns the tranche-wide escrowed total.
func (r *Registry) TotalEscrowed(t accounting.TrancheID) units.Shares {
	return r.side(t).escrowTotal
}

// Mint issues new shares to an account.
func (r *Registry) Mint(t accounting.TrancheID, account string, amount units.Shares) error {
	if amount <= 0 {
		return fmt.Errorf("market %s: mint amount %s must be positive", r.marketID, amount)
	}
	s := r.side(t)
	s.balances[account] += amount
	s.supply += amount
	return nil
}

// Burn destroys shares from an account's free balance.
func (r *Registry) Burn(t accounting.TrancheID, account string, amount units.Shares) error {
	if amount <= 0 {
		return fmt.Errorf("market %s: burn amount %s must be positive", r.marketID, amount)
	}
	s := r.side(t)
	if s.balances[account] < amount {
		return fmt.Errorf("market %s: account %s has %s %s shares, need %s: %w",
			r.marketID, account, s.balances[account], t, amount, ErrInsufficientBalance)
	}
	s.balances[account] -= amount
	if s.balances[account] == 0 {
		delete(s.balances, account)
	}
	s.supply -= amount
	return nil
}

// Escrow moves shares from an account's free balance into escrow.
func (r *Registry) Escrow(t accounting.TrancheID, account string, amount units.Shares) error {
	if amount <= 0 {
		return fmt.Errorf("market %s: escrow amount %s must be positive", r.marketID, amount)
	}
	s := r.side(t)
	if s.balances[account] < amount {
		return fmt.Errorf("market %s: account %s has %s %s shares, need %s: %w",
			r.marketID, account, s.balances[account], t, amount, ErrInsufficientBalance)
	}
	s.balances[account] -= amount
	if s.balances[account] == 0 {
		delete(s.balances, account)
	}
	s.escrowed[account] += amount
	s.escrowTotal += amount
	return nil
}

// ReleaseEscrow returns escrowed shares to the account's free balance.
func (r *Registry) ReleaseEscrow(t accounting.TrancheID, account string, amount units.Shares) error {
	if err := r.takeEscrow(t, account, amount); err != nil {
		return err
	}
	r.side(t).balances[account] += amount
	return nil
}

// BurnEscrow destroys shares held in escrow, completing a redemption.
func (r *Registry) BurnEscrow(t accounting.TrancheID, account string, amount units.Shares) error {
	if err := r.takeEscrow(t, account, amount); err != nil {
		return err
	}
	r.side(t).supply -= amount
	return nil
}

func (r *Registry) takeEscrow(t accounting.TrancheID, account string, amount units.Shares) error {
	if amount <= 0 {
		return fmt.Errorf("market %s: escrow amount %s must be positive", r.marketID, amount)
	}
	s := r.side(t)
	if s.escrowed[account] < amount {
		return fmt.Errorf("market %s: account %s has %s %s shares escrowed, need %s: %w",
			r.marketID, account, s.escrowed[account], t, amount, ErrInsufficientEscrow)
	}
	s.escrowed[account] -= amount
	if s.escrowed[account] == 0 {
		delete(s.escrowed, account)
	}
	s.escrowTotal -= amount
	return nil
}

// BalanceRecord is one account's position, used by the persistence layer.
type BalanceRecord struct {
	Account  string
	Tranche  accounting.TrancheID
	Balance  units.Shares
	Escrowed units.Shares
}

// Records snapshots every account with a non-zero position in the tranche.
func (r *Registry) Records(t accounting.TrancheID) []BalanceRecord {
	s := r.side(t)
	seen := make(map[string]bool, len(s.balances))
	out := make([]BalanceRecord, 0, len(s.balances)+len(s.escrowed))
	for account, bal := range s.balances {
		seen[account] = true
		out = append(out, BalanceRecord{Account: account, Tranche: t, Balance: bal, Escrowed: s.escrowed[account]})
	}
	for account, esc := range s.escrowed {
		if !seen[account] {
			out = append(out, BalanceRecord{Account: account, Tranche: t, Escrowed: esc})
		}
	}
	return out
}

// Restore loads one account's position during recovery. Supply is rebuilt
// from the restored positions, so it must only be called on a fresh registry.
func (r *Registry) Restore(rec BalanceRecord) {
	s := r.side(rec.Tranche)
	if rec.Balance > 0 {
		s.balances[rec.Account] = rec.Balance
	}
	if rec.Escrowed > 0 {
		s.escrowed[rec.Account] = rec.Escrowed
		s.escrowTotal += rec.Escrowed
	}
	s.supply += rec.Balance + rec.Escrowed
}
