// Package venue models the external yield sources holding tranche capital.
// A venue executes deposits and withdrawals and reports the raw value of the
// tranche's invested capital. Valuation is mark-driven: the ingestion layer
// delivers sequenced marks and the venue drops anything stale or out of
// order, so a replayed mark stream converges to the same value.
package venue

import (
	"errors"
	"fmt"

	"TrancheVault/internal/units"
)

var (
	ErrInsufficientValue = errors.New("withdrawal exceeds venue value")
	ErrUnknownVenue      = errors.New("unknown venue")
)

// Mark is one observation of a venue's valuation. Vault venues are marked
// with an absolute value; lending venues with a supply index. Sequence is
// per-venue monotonic and assigned by the mark producer.
type Mark struct {
	VenueID   string
	Sequence  uint64
	Value     units.Tranche  // vault venues
	Index     units.Fraction // lending venues, FractionScale = 1.0
	Timestamp int64          // epoch millis
}

// State is a venue's durable valuation state. It is persisted with every
// committed update and restored at boot, so a restart never reads the
// position as empty or re-applies marks the venue already saw.
type State struct {
	VenueID string
	Value   units.Tranche  // vault: absolute value; lending: scaled balance
	Index   units.Fraction // lending venues, zero for vaults
	LastSeq uint64
}

// Venue is one tranche's yield source. Implementations are not safe for
// concurrent use; the kernel serializes every call under its operation lock.
type Venue interface {
	ID() string

	// RawNAV reports the current raw value in tranche units without
	// mutating anything, so dry-run views can use it freely.
	RawNAV() units.Tranche

	// Deposit and Withdraw execute capital movements against the venue.
	Deposit(amount units.Tranche) error
	Withdraw(amount units.Tranche) error

	// ApplyMark updates the valuation. Returns false when the mark is
	// stale (sequence at or below the last applied) and was dropped.
	ApplyMark(m Mark) (bool, error)

	// LastSequence is the sequence of the last applied mark.
	LastSequence() uint64

	// State and RestoreState snapshot and reload the valuation state for
	// persistence across restarts.
	State() State
	RestoreState(s State) error

	// Units describes the venue asset's native precision.
	Units() units.UnitConfig
}

func checkMark(venueID string, last uint64, m Mark) (bool, error) {
	if m.VenueID != venueID {
		return false, fmt.Errorf("mark for venue %s applied to %s: %w", m.VenueID, venueID, ErrUnknownVenue)
	}
	if m.Sequence <= last {
		return false, nil
	}
	return true, nil
}
