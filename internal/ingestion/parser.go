package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"TrancheVault/internal/event"
	"TrancheVault/internal/units"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The shell validates and converts raw events before
// applying them to the kernel.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "NAVMark":
		return parseNAVMark(raw.Data)
	case "SyncTrigger":
		return parseSyncTrigger(raw.Data)
	case "ConfigUpdate":
		return parseConfigUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type navMarkJSON struct {
	VenueID     string `json:"venue_id"`
	Sequence    uint64 `json:"sequence"`
	Value       *int64 `json:"value,omitempty"`
	Index       *int64 `json:"index,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseNAVMark(data []byte) (*event.NAVMark, error) {
	var j navMarkJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NAVMark: %w", err)
	}
	if j.VenueID == "" {
		return nil, fmt.Errorf("parse NAVMark: missing venue_id")
	}
	if j.Sequence == 0 {
		return nil, fmt.Errorf("parse NAVMark: missing sequence")
	}
	if j.Value == nil && j.Index == nil {
		return nil, fmt.Errorf("parse NAVMark: needs value or index")
	}

	mark := &event.NAVMark{
		VenueID:   j.VenueID,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampMs,
	}
	if j.Value != nil {
		mark.Value = units.Tranche(*j.Value)
	}
	if j.Index != nil {
		mark.Index = units.Fraction(*j.Index)
	}
	return mark, nil
}

type syncTriggerJSON struct {
	TriggerID   string `json:"trigger_id"`
	Market      string `json:"market"`
	Sequence    int64  `json:"sequence"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseSyncTrigger(data []byte) (*event.SyncTrigger, error) {
	var j syncTriggerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SyncTrigger: %w", err)
	}
	triggerID, err := uuid.Parse(j.TriggerID)
	if err != nil {
		return nil, fmt.Errorf("parse trigger_id: %w", err)
	}
	if j.Market == "" {
		return nil, fmt.Errorf("parse SyncTrigger: missing market")
	}

	return &event.SyncTrigger{
		TriggerID: triggerID,
		Market:    j.Market,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampMs,
	}, nil
}

type configUpdateJSON struct {
	Market                  string `json:"market"`
	SeniorFeeRate           int64  `json:"senior_fee_rate"`
	JuniorFeeRate           int64  `json:"junior_fee_rate"`
	RedemptionDelayMs       int64  `json:"redemption_delay_ms"`
	FixedTermDurationMs     int64  `json:"fixed_term_duration_ms"`
	LLTV                    int64  `json:"lltv"`
	ForgiveCoverageOnExpiry bool   `json:"forgive_coverage_on_expiry"`
	FeeRecipient            string `json:"fee_recipient"`
	Sequence                int64  `json:"sequence"`
	TimestampMs             int64  `json:"timestamp_ms"`
}

func parseConfigUpdate(data []byte) (*event.ConfigUpdate, error) {
	var j configUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConfigUpdate: %w", err)
	}
	if j.Market == "" {
		return nil, fmt.Errorf("parse ConfigUpdate: missing market")
	}
	if j.Sequence <= 0 {
		return nil, fmt.Errorf("parse ConfigUpdate: missing sequence")
	}

	return &event.ConfigUpdate{
		Market:                  j.Market,
		SeniorFeeRate:           units.Fraction(j.SeniorFeeRate),
		JuniorFeeRate:           units.Fraction(j.JuniorFeeRate),
		RedemptionDelayMs:       j.RedemptionDelayMs,
		FixedTermDurationMs:     j.FixedTermDurationMs,
		LLTV:                    units.Fraction(j.LLTV),
		ForgiveCoverageOnExpiry: j.ForgiveCoverageOnExpiry,
		FeeRecipient:            j.FeeRecipient,
		Sequence:                j.Sequence,
		Timestamp:               j.TimestampMs,
	}, nil
}
