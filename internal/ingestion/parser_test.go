package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"TrancheVault/internal/event"
	"TrancheVault/internal/ingestion"
	"TrancheVault/internal/units"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseNAVMark_Value(t *testing.T) {
	payload := map[string]interface{}{
		"venue_id":     "vault-st",
		"sequence":     uint64(42),
		"value":        int64(1_250_000_000_000),
		"timestamp_ms": int64(1_700_000_000_000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "NAVMark")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	mark, ok := evt.(*event.NAVMark)
	if !ok {
		t.Fatalf("expected *event.NAVMark, got %T", evt)
	}
	if mark.VenueID != "vault-st" {
		t.Errorf("venue: got %s, want vault-st", mark.VenueID)
	}
	if mark.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", mark.Sequence)
	}
	if mark.Value != units.Tranche(1_250_000_000_000) {
		t.Errorf("value: got %d", mark.Value)
	}
	if mark.Index != 0 {
		t.Errorf("index should be unset, got %d", mark.Index)
	}
	if mark.IdempotencyKey() != "navmark:vault-st:42" {
		t.Errorf("idempotency key: got %s", mark.IdempotencyKey())
	}
}

func TestParseNAVMark_Index(t *testing.T) {
	payload := map[string]interface{}{
		"venue_id":     "aave-jt",
		"sequence":     uint64(7),
		"index":        int64(1_050_000),
		"timestamp_ms": int64(1_700_000_000_000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "NAVMark")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	mark := evt.(*event.NAVMark)
	if mark.Index != units.Fraction(1_050_000) {
		t.Errorf("index: got %d, want 1050000", mark.Index)
	}
}

func TestParseNAVMark_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing venue", map[string]interface{}{"sequence": uint64(1), "value": int64(1)}},
		{"missing sequence", map[string]interface{}{"venue_id": "v", "value": int64(1)}},
		{"no value or index", map[string]interface{}{"venue_id": "v", "sequence": uint64(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ingestion.ParseRawEvent(rawFromJSON(t, tc.payload), "NAVMark"); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestParseSyncTrigger(t *testing.T) {
	payload := map[string]interface{}{
		"trigger_id":   "550e8400-e29b-41d4-a716-446655440000",
		"market":       "mkt-usdc",
		"sequence":     int64(9),
		"timestamp_ms": int64(1_700_000_000_000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "SyncTrigger")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	trig := evt.(*event.SyncTrigger)
	if trig.Market != "mkt-usdc" {
		t.Errorf("market: got %s", trig.Market)
	}
	if trig.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %s", trig.IdempotencyKey())
	}
}

func TestParseSyncTrigger_BadUUID(t *testing.T) {
	payload := map[string]interface{}{"trigger_id": "nope", "market": "mkt-usdc"}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "SyncTrigger"); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseConfigUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"market":                     "mkt-usdc",
		"senior_fee_rate":            int64(100_000),
		"junior_fee_rate":            int64(150_000),
		"redemption_delay_ms":        int64(86_400_000),
		"fixed_term_duration_ms":     int64(604_800_000),
		"lltv":                       int64(900_000),
		"forgive_coverage_on_expiry": true,
		"fee_recipient":              "treasury",
		"sequence":                   int64(3),
		"timestamp_ms":               int64(1_700_000_000_000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ConfigUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	upd := evt.(*event.ConfigUpdate)
	if upd.SeniorFeeRate != 100_000 || upd.JuniorFeeRate != 150_000 {
		t.Errorf("fee rates: got %d/%d", upd.SeniorFeeRate, upd.JuniorFeeRate)
	}
	if upd.IdempotencyKey() != "config:mkt-usdc:3" {
		t.Errorf("idempotency key: got %s", upd.IdempotencyKey())
	}
	if !upd.ForgiveCoverageOnExpiry {
		t.Error("forgive flag lost")
	}
}

func TestParseRawEvent_UnknownType(t *testing.T) {
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, map[string]interface{}{}), "Nonsense"); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestEventTypeForSubject(t *testing.T) {
	subjects := ingestion.DefaultSubjects()

	cases := []struct {
		subject string
		want    string
		ok      bool
	}{
		{"tranche.navmarks.vault-st", "NAVMark", true},
		{"tranche.sync.mkt-usdc", "SyncTrigger", true},
		{"tranche.markets.config.mkt-usdc", "ConfigUpdate", true},
		{"perp.trades.BTC", "", false},
	}
	for _, tc := range cases {
		got, ok := ingestion.EventTypeForSubject(tc.subject, subjects)
		if got != tc.want || ok != tc.ok {
			t.Errorf("EventTypeForSubject(%s): got (%s, %v), want (%s, %v)", tc.subject, got, ok, tc.want, tc.ok)
		}
	}
}
