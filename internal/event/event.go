// Package event defines the typed events flowing through the ingestion
// shell: venue NAV marks, sync triggers and config updates inbound, ledger
// sync results and redemption transitions outbound.
package event

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeNAVMark
	EventTypeSyncTrigger
	EventTypeConfigUpdate
	EventTypeLedgerSynced
	EventTypeRedemptionUpdated
	EventTypeFeesPaid
)

// Event is the interface all inbound event payloads implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil when the market is resolved
	// downstream, e.g. marks routed by venue)
	MarketID() *string

	// SourceSequence returns the upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeNAVMark:
		return "NAVMark"
	case EventTypeSyncTrigger:
		return "SyncTrigger"
	case EventTypeConfigUpdate:
		return "ConfigUpdate"
	case EventTypeLedgerSynced:
		return "LedgerSynced"
	case EventTypeRedemptionUpdated:
		return "RedemptionUpdated"
	case EventTypeFeesPaid:
		return "FeesPaid"
	default:
		return "Unknown"
	}
}
