package event

import (
	"fmt"

	"TrancheVault/internal/units"
	"TrancheVault/internal/venue"
)

// NAVMark is a raw NAV observation for one venue. Vault-style venues carry
// an absolute Value; lending-style venues carry a supply Index. Sequence is
// monotonic per venue and older marks are dropped by the kernel.
type NAVMark struct {
	VenueID   string
	Sequence  uint64
	Value     units.Tranche  // absolute venue value, vault venues
	Index     units.Fraction // supply index, lending venues
	Timestamp int64          // epoch milliseconds, versioned input
}

func (n *NAVMark) IdempotencyKey() string {
	return fmt.Sprintf("navmark:%s:%d", n.VenueID, n.Sequence)
}

func (n *NAVMark) EventType() EventType {
	return EventTypeNAVMark
}

// MarketID is nil: marks are routed by venue, not by market.
func (n *NAVMark) MarketID() *string {
	return nil
}

func (n *NAVMark) SourceSequence() int64 {
	return int64(n.Sequence)
}

func (n *NAVMark) Mark() venue.Mark {
	return venue.Mark{
		VenueID:   n.VenueID,
		Sequence:  n.Sequence,
		Value:     n.Value,
		Index:     n.Index,
		Timestamp: n.Timestamp,
	}
}
