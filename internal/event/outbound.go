package event

// Outbound wire payloads, published after persistence is confirmed. Field
// names use snake_case for downstream consumers; fixed-point values keep
// their integer scales.

// LedgerSynced mirrors one committed sync result.
type LedgerSynced struct {
	MarketID         string `json:"market_id"`
	STRawNAV         int64  `json:"st_raw_nav"`
	JTRawNAV         int64  `json:"jt_raw_nav"`
	STEffectiveNAV   int64  `json:"st_effective_nav"`
	JTEffectiveNAV   int64  `json:"jt_effective_nav"`
	STCoverageDebt   int64  `json:"st_coverage_debt"`
	JTCoverageDebt   int64  `json:"jt_coverage_debt"`
	JuniorAbsorbed   int64  `json:"junior_absorbed"`
	SeniorLossExcess int64  `json:"senior_loss_excess"`
	SeniorRecovered  int64  `json:"senior_recovered"`
	CoverageRepaid   int64  `json:"coverage_repaid"`
	CoverageForgiven int64  `json:"coverage_forgiven"`
	STFeeAccrued     int64  `json:"st_fee_accrued"`
	JTFeeAccrued     int64  `json:"jt_fee_accrued"`
	JuniorYieldShare int64  `json:"junior_yield_share"`
	Utilization      int64  `json:"utilization"`
	LTV              int64  `json:"ltv"`
	State            string `json:"state"`
	Timestamp        int64  `json:"timestamp_ms"`
	Version          int64  `json:"version"`
}

// RedemptionUpdated mirrors one redemption-request state transition.
type RedemptionUpdated struct {
	MarketID       string `json:"market_id"`
	RequestID      uint64 `json:"request_id"`
	Controller     string `json:"controller"`
	Shares         int64  `json:"shares"`
	NAVPerShare    int64  `json:"nav_per_share"`
	ClaimableAfter int64  `json:"claimable_after_ms"`
	CreatedAt      int64  `json:"created_at_ms"`
	Status         string `json:"status"`
}

// FeesPaid mirrors one protocol-fee claim.
type FeesPaid struct {
	MarketID  string `json:"market_id"`
	Tranche   string `json:"tranche"`
	Recipient string `json:"recipient"`
	Value     int64  `json:"value"`
	Amount    int64  `json:"amount"`
}
