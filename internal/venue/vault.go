package venue

import (
	"fmt"

	"TrancheVault/internal/units"
)

// Vault is a synchronous vault venue: its marks carry the absolute value of
// the position, already inclusive of accrued yield or loss. Deposits and
// withdrawals adjust the value directly.
type Vault struct {
	id      string
	cfg     units.UnitConfig
	value   units.Tranche
	lastSeq uint64
}

func NewVault(id string, cfg units.UnitConfig) *Vault {
	return &Vault{id: id, cfg: cfg}
}

func (v *Vault) ID() string { return v.id }

func (v *Vault) RawNAV() units.Tranche { return v.value }

func (v *Vault) Units() units.UnitConfig { return v.cfg }

func (v *Vault) LastSequence() uint64 { return v.lastSeq }

func (v *Vault) State() State {
	return State{VenueID: v.id, Value: v.value, LastSeq: v.lastSeq}
}

func (v *Vault) RestoreState(s State) error {
	if s.VenueID != v.id {
		return fmt.Errorf("state for venue %s restored into %s: %w", s.VenueID, v.id, ErrUnknownVenue)
	}
	if s.Value < 0 {
		return fmt.Errorf("venue %s: negative restored value %s", v.id, s.Value)
	}
	v.value = s.Value
	v.lastSeq = s.LastSeq
	return nil
}

func (v *Vault) Deposit(amount units.Tranche) error {
	if amount <= 0 {
		return fmt.Errorf("venue %s: deposit amount %s must be positive", v.id, amount)
	}
	v.value += amount
	return nil
}

func (v *Vault) Withdraw(amount units.Tranche) error {
	if amount <= 0 {
		return fmt.Errorf("venue %s: withdrawal amount %s must be positive", v.id, amount)
	}
	if amount > v.value {
		return fmt.Errorf("venue %s: withdraw %s from %s: %w", v.id, amount, v.value, ErrInsufficientValue)
	}
	v.value -= amount
	return nil
}

func (v *Vault) ApplyMark(m Mark) (bool, error) {
	ok, err := checkMark(v.id, v.lastSeq, m)
	if !ok || err != nil {
		return false, err
	}
	if m.Value < 0 {
		return false, fmt.Errorf("venue %s: negative mark value %s", v.id, m.Value)
	}
	v.value = m.Value
	v.lastSeq = m.Sequence
	return true, nil
}
