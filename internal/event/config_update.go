package event

import (
	"fmt"
	"time"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/units"
)

// ConfigUpdate carries the mutable market parameters. Structural fields
// (coverage ratio, beta) are fixed at market creation and are not part of
// the update surface.
type ConfigUpdate struct {
	Market                  string
	SeniorFeeRate           units.Fraction
	JuniorFeeRate           units.Fraction
	RedemptionDelayMs       int64
	FixedTermDurationMs     int64
	LLTV                    units.Fraction
	ForgiveCoverageOnExpiry bool
	FeeRecipient            string
	Sequence                int64
	Timestamp               int64 // epoch milliseconds
}

func (c *ConfigUpdate) IdempotencyKey() string {
	return fmt.Sprintf("config:%s:%d", c.Market, c.Sequence)
}

func (c *ConfigUpdate) EventType() EventType {
	return EventTypeConfigUpdate
}

func (c *ConfigUpdate) MarketID() *string {
	m := c.Market
	return &m
}

func (c *ConfigUpdate) SourceSequence() int64 {
	return c.Sequence
}

// Merge overlays the mutable fields onto a market's current configuration.
func (c *ConfigUpdate) Merge(cur accounting.MarketConfig) accounting.MarketConfig {
	cur.SeniorFeeRate = c.SeniorFeeRate
	cur.JuniorFeeRate = c.JuniorFeeRate
	cur.RedemptionDelay = time.Duration(c.RedemptionDelayMs) * time.Millisecond
	cur.FixedTermDuration = time.Duration(c.FixedTermDurationMs) * time.Millisecond
	cur.LLTV = c.LLTV
	cur.ForgiveCoverageOnExpiry = c.ForgiveCoverageOnExpiry
	cur.FeeRecipient = c.FeeRecipient
	return cur
}
