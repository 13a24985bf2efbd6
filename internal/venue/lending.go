package venue

import (
	"fmt"

	"TrancheVault/internal/units"
)

// Lending is a lending-market venue. The position is held as a scaled
// balance against a supply index (1.0 at inception); interest accrues by the
// index rising, so the marks carry the index rather than an absolute value.
// The index may fall when the market socializes bad debt.
type Lending struct {
	id      string
	cfg     units.UnitConfig
	scaled  units.Tranche
	index   units.Fraction
	lastSeq uint64
}

func NewLending(id string, cfg units.UnitConfig) *Lending {
	return &Lending{id: id, cfg: cfg, index: units.One}
}

func (l *Lending) ID() string { return l.id }

func (l *Lending) Units() units.UnitConfig { return l.cfg }

func (l *Lending) LastSequence() uint64 { return l.lastSeq }

// Index is the last applied supply index.
func (l *Lending) Index() units.Fraction { return l.index }

func (l *Lending) State() State {
	return State{VenueID: l.id, Value: l.scaled, Index: l.index, LastSeq: l.lastSeq}
}

func (l *Lending) RestoreState(s State) error {
	if s.VenueID != l.id {
		return fmt.Errorf("state for venue %s restored into %s: %w", s.VenueID, l.id, ErrUnknownVenue)
	}
	if s.Value < 0 {
		return fmt.Errorf("venue %s: negative restored scaled balance %s", l.id, s.Value)
	}
	if s.Index <= 0 {
		return fmt.Errorf("venue %s: non-positive restored index %s", l.id, s.Index)
	}
	l.scaled = s.Value
	l.index = s.Index
	l.lastSeq = s.LastSeq
	return nil
}

// RawNAV values the scaled balance at the current index, floored so the
// position is never overstated.
func (l *Lending) RawNAV() units.Tranche {
	if l.scaled == 0 {
		return 0
	}
	return units.Tranche(units.MulFraction(units.NAV(l.scaled), l.index, units.RoundDown))
}

func (l *Lending) Deposit(amount units.Tranche) error {
	if amount <= 0 {
		return fmt.Errorf("venue %s: deposit amount %s must be positive", l.id, amount)
	}
	// Floor the scaled credit so a deposit never mints more claim than the
	// capital supplied.
	l.scaled += units.Tranche(units.DivFraction(units.NAV(amount), l.index, units.RoundDown))
	return nil
}

func (l *Lending) Withdraw(amount units.Tranche) error {
	if amount <= 0 {
		return fmt.Errorf("venue %s: withdrawal amount %s must be positive", l.id, amount)
	}
	if amount > l.RawNAV() {
		return fmt.Errorf("venue %s: withdraw %s from %s: %w", l.id, amount, l.RawNAV(), ErrInsufficientValue)
	}
	// Ceil the scaled debit so the remaining claim is never overstated.
	s := units.Tranche(units.DivFraction(units.NAV(amount), l.index, units.RoundUp))
	if s > l.scaled {
		s = l.scaled
	}
	l.scaled -= s
	return nil
}

func (l *Lending) ApplyMark(m Mark) (bool, error) {
	ok, err := checkMark(l.id, l.lastSeq, m)
	if !ok || err != nil {
		return false, err
	}
	if m.Index <= 0 {
		return false, fmt.Errorf("venue %s: non-positive mark index %s", l.id, m.Index)
	}
	l.index = m.Index
	l.lastSeq = m.Sequence
	return true, nil
}
