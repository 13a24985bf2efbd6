package event

import "github.com/google/uuid"

// SyncTrigger forces a full waterfall pass for one market using the venues'
// last known raw NAVs, without a fresh mark.
type SyncTrigger struct {
	TriggerID uuid.UUID
	Market    string
	Sequence  int64
	Timestamp int64 // epoch milliseconds
}

func (s *SyncTrigger) IdempotencyKey() string {
	return s.TriggerID.String()
}

func (s *SyncTrigger) EventType() EventType {
	return EventTypeSyncTrigger
}

func (s *SyncTrigger) MarketID() *string {
	m := s.Market
	return &m
}

func (s *SyncTrigger) SourceSequence() int64 {
	return s.Sequence
}
