package kernel_test

import (
	"errors"
	"testing"
	"time"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/apperrors"
	"TrancheVault/internal/kernel"
	"TrancheVault/internal/shares"
	"TrancheVault/internal/units"
	"TrancheVault/internal/venue"
	"TrancheVault/internal/ydm"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func tr(n int64) units.Tranche { return units.Tranche(n * 1_000_000) }
func sh(n int64) units.Shares  { return units.Shares(n * units.ShareScale) }
func nv(n int64) units.NAV     { return units.NAV(n * units.NAVScale) }

func marketConfig() accounting.MarketConfig {
	return accounting.MarketConfig{
		MarketID:                "mkt-usdc",
		CoverageRatio:           200_000, // 0.20
		SeniorFeeRate:           0,
		JuniorFeeRate:           0,
		RedemptionDelay:         24 * time.Hour,
		FixedTermDuration:       7 * 24 * time.Hour,
		LLTV:                    900_000,
		ForgiveCoverageOnExpiry: true,
		FeeRecipient:            "fee-recipient",
	}
}

func newTestMarket(t *testing.T, cfg accounting.MarketConfig, share units.Fraction) (*kernel.Market, *venue.Vault, *venue.Vault, *clock) {
	t.Helper()
	model, err := ydm.NewFlatShare(share)
	if err != nil {
		t.Fatalf("flat share: %v", err)
	}
	st := venue.NewVault("vault-st", units.DefaultUnitConfig)
	jt := venue.NewVault("vault-jt", units.DefaultUnitConfig)
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}

	m, err := kernel.NewMarket(cfg, model, st, jt, kernel.WithClock(clk.now))
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	return m, st, jt, clk
}

func mustDeposit(t *testing.T, m *kernel.Market, tranche accounting.TrancheID, account string, amount units.Tranche) kernel.DepositResult {
	t.Helper()
	res, err := m.Deposit(tranche, account, amount)
	if err != nil {
		t.Fatalf("Deposit(%s, %s): %v", tranche, amount, err)
	}
	return res
}

func markVault(t *testing.T, m *kernel.Market, v *venue.Vault, seq uint64, value units.Tranche) {
	t.Helper()
	applied, err := m.ApplyMark(venue.Mark{VenueID: v.ID(), Sequence: seq, Value: value})
	if err != nil || !applied {
		t.Fatalf("ApplyMark(%s, seq=%d): applied=%v err=%v", v.ID(), seq, applied, err)
	}
}

func appCode(err error) apperrors.ErrorType {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// ============================================================================
// Test: deposits and coverage gating
// ============================================================================

func TestDeposit_FirstDepositsMintOneToOne(t *testing.T) {
	m, _, _, _ := newTestMarket(t, marketConfig(), 500_000)

	res := mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	if res.Shares != sh(1_000_000) {
		t.Errorf("junior shares: got %s, want 1000000.000000", res.Shares)
	}
	if res.Value != nv(1_000_000) {
		t.Errorf("junior value: got %s, want 1000000.000000", res.Value)
	}

	led := m.Ledger()
	if led.JTRawNAV != nv(1_000_000) || led.JTEffectiveNAV != nv(1_000_000) {
		t.Errorf("ledger after deposit: raw=%s eff=%s", led.JTRawNAV, led.JTEffectiveNAV)
	}
}

func TestDeposit_SeniorGatedByCoverage(t *testing.T) {
	m, _, _, _ := newTestMarket(t, marketConfig(), 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	mustDeposit(t, m, accounting.TrancheSenior, "bob", tr(300_000))

	// Junior 1M at coverage 0.20 supports 5M of senior; 300k is in, so
	// the headroom is 4.7M.
	if got := m.MaxDeposit(accounting.TrancheSenior); got != tr(4_700_000) {
		t.Errorf("senior max deposit: got %s, want %s", got, tr(4_700_000))
	}

	_, err := m.Deposit(accounting.TrancheSenior, "bob", tr(4_700_000)+1)
	if appCode(err) != apperrors.ErrCoverageExceeded {
		t.Errorf("over-headroom deposit: got %v, want COVERAGE_EXCEEDED", err)
	}

	if _, err := m.Deposit(accounting.TrancheSenior, "bob", tr(4_700_000)); err != nil {
		t.Errorf("deposit at exact headroom should pass: %v", err)
	}
}

func TestDeposit_MintsAtCurrentSharePrice(t *testing.T) {
	m, _, jt, _ := newTestMarket(t, marketConfig(), 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))

	// Junior venue appreciates 25%: share price 1.25.
	markVault(t, m, jt, 1, tr(1_250_000))

	res := mustDeposit(t, m, accounting.TrancheJunior, "bob", tr(100_000))
	if res.Shares != sh(80_000) {
		t.Errorf("shares at 1.25 NAV: got %s, want 80000.000000", res.Shares)
	}
}

func TestDeposit_DustRejectedBeforeVenueCredit(t *testing.T) {
	model, err := ydm.NewFlatShare(500_000)
	if err != nil {
		t.Fatalf("flat share: %v", err)
	}
	st := venue.NewVault("vault-st", units.DefaultUnitConfig)
	jt := venue.NewVault("vault-jt", units.UnitConfig{Decimals: 9, Scale: 1_000_000_000})
	m, err := kernel.NewMarket(marketConfig(), model, st, jt)
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}

	// 500 base units of a 9-decimal asset sit below the valuation precision,
	// so no shares would mint. The deposit must fail whole: the venue never
	// takes the funds.
	_, err = m.Deposit(accounting.TrancheJunior, "alice", 500)
	if appCode(err) != apperrors.ErrInvalidRequest {
		t.Errorf("dust deposit: got %v, want INVALID_REQUEST", err)
	}
	if got := jt.RawNAV(); got != 0 {
		t.Errorf("venue credited on rejected deposit: got %s, want 0", got)
	}
}

// ============================================================================
// Test: fixed-term gating
// ============================================================================

func enterFixedTerm(t *testing.T, m *kernel.Market, st *venue.Vault) {
	t.Helper()
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	mustDeposit(t, m, accounting.TrancheSenior, "bob", tr(300_000))
	markVault(t, m, st, 1, tr(250_000)) // covered 50k loss
	if got := m.Ledger().State; got != accounting.StateFixedTerm {
		t.Fatalf("setup: state %s, want FIXED_TERM", got)
	}
}

func TestFixedTerm_GatesJuniorDepositAndSeniorRedeem(t *testing.T) {
	m, st, _, _ := newTestMarket(t, marketConfig(), 500_000)
	enterFixedTerm(t, m, st)

	_, err := m.Deposit(accounting.TrancheJunior, "carol", tr(10_000))
	if appCode(err) != apperrors.ErrFixedTermLocked {
		t.Errorf("junior deposit in FIXED_TERM: got %v, want FIXED_TERM_LOCKED", err)
	}
	_, err = m.SeniorRedeem("bob", sh(10_000))
	if appCode(err) != apperrors.ErrFixedTermLocked {
		t.Errorf("senior redeem in FIXED_TERM: got %v, want FIXED_TERM_LOCKED", err)
	}

	if got := m.MaxDeposit(accounting.TrancheJunior); got != 0 {
		t.Errorf("junior max deposit: got %s, want 0", got)
	}
	if got := m.MaxRedeem(accounting.TrancheSenior, "bob"); got != 0 {
		t.Errorf("senior max redeem: got %s, want 0", got)
	}
}

func TestFixedTerm_ExpiryReopensMarket(t *testing.T) {
	cfg := marketConfig()
	m, st, _, clk := newTestMarket(t, cfg, 500_000)
	enterFixedTerm(t, m, st)

	clk.advance(cfg.FixedTermDuration + time.Minute)
	res := m.SyncNow()

	if res.State != accounting.StatePerpetual {
		t.Fatalf("state after expiry: got %s, want PERPETUAL", res.State)
	}
	if res.JTCoverageDebt != 0 {
		t.Errorf("coverage debt after expiry: got %s, want 0", res.JTCoverageDebt)
	}
	if _, err := m.Deposit(accounting.TrancheJunior, "carol", tr(10_000)); err != nil {
		t.Errorf("junior deposit after expiry: %v", err)
	}
}

// ============================================================================
// Test: senior synchronous redemption
// ============================================================================

func TestSeniorRedeem_PaysAtCurrentPrice(t *testing.T) {
	// Flat share 0: all senior yield stays senior.
	m, st, _, _ := newTestMarket(t, marketConfig(), 0)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	mustDeposit(t, m, accounting.TrancheSenior, "bob", tr(300_000))

	// Senior venue appreciates 10%: share price 1.10.
	markVault(t, m, st, 1, tr(330_000))

	res, err := m.SeniorRedeem("bob", sh(100_000))
	if err != nil {
		t.Fatalf("SeniorRedeem: %v", err)
	}
	if res.Value != nv(110_000) {
		t.Errorf("value: got %s, want %s", res.Value, nv(110_000))
	}
	if res.Amount != tr(110_000) {
		t.Errorf("amount: got %s, want %s", res.Amount, tr(110_000))
	}

	led := m.Ledger()
	if led.STEffectiveNAV != nv(220_000) {
		t.Errorf("senior effective after redeem: got %s, want %s", led.STEffectiveNAV, nv(220_000))
	}
}

func TestSeniorRedeem_InsufficientBalance(t *testing.T) {
	m, _, _, _ := newTestMarket(t, marketConfig(), 0)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	mustDeposit(t, m, accounting.TrancheSenior, "bob", tr(300_000))

	_, err := m.SeniorRedeem("bob", sh(300_001))
	if appCode(err) != apperrors.ErrInsufficientBalance {
		t.Errorf("got %v, want INSUFFICIENT_BALANCE", err)
	}
}

// ============================================================================
// Test: junior redemption queue
// ============================================================================

func TestRequestRedeem_GatedByPledgedCoverage(t *testing.T) {
	m, _, _, _ := newTestMarket(t, marketConfig(), 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	mustDeposit(t, m, accounting.TrancheSenior, "bob", tr(300_000))

	// 60k of junior NAV is pledged (0.20 * 300k), so 60k of alice's 1M
	// shares are locked.
	if got := m.MaxRedeem(accounting.TrancheJunior, "alice"); got != sh(940_000) {
		t.Errorf("junior max redeem: got %s, want 940000.000000", got)
	}

	_, err := m.RequestRedeem("alice", sh(940_000)+1)
	if appCode(err) != apperrors.ErrInsufficientRedeemable {
		t.Errorf("over-pledge request: got %v, want INSUFFICIENT_REDEEMABLE_SHARES", err)
	}

	req, err := m.RequestRedeem("alice", sh(940_000))
	if err != nil {
		t.Fatalf("RequestRedeem: %v", err)
	}
	if req.ID != 1 {
		t.Errorf("request id: got %d, want 1", req.ID)
	}
}

func TestRedeem_BeforeDelayRejected(t *testing.T) {
	m, _, _, _ := newTestMarket(t, marketConfig(), 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	req, _ := m.RequestRedeem("alice", sh(100_000))

	_, err := m.Redeem("alice", req.ID, sh(100_000))
	if appCode(err) != apperrors.ErrInsufficientRedeemable {
		t.Errorf("claim before delay: got %v, want INSUFFICIENT_REDEEMABLE_SHARES", err)
	}
}

func TestRedeem_PinnedToRequestTimePrice(t *testing.T) {
	cfg := marketConfig()
	m, _, jt, clk := newTestMarket(t, cfg, 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))

	req, err := m.RequestRedeem("alice", sh(100_000))
	if err != nil {
		t.Fatalf("RequestRedeem: %v", err)
	}
	if req.NAVPerShare != nv(1) {
		t.Fatalf("snapshot NAV per share: got %s, want 1.000000", req.NAVPerShare)
	}

	// NAV per share rises 10% during the delay; the claim still pays the
	// request-time valuation.
	clk.advance(cfg.RedemptionDelay + time.Minute)
	markVault(t, m, jt, 1, tr(1_100_000))

	res, err := m.Redeem("alice", req.ID, sh(100_000))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Value != nv(100_000) {
		t.Errorf("claim value: got %s, want %s", res.Value, nv(100_000))
	}
	if res.Remaining != 0 {
		t.Errorf("remaining: got %s, want 0", res.Remaining)
	}
}

func TestRedeem_BearsLossDuringDelay(t *testing.T) {
	cfg := marketConfig()
	m, _, jt, clk := newTestMarket(t, cfg, 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))

	req, _ := m.RequestRedeem("alice", sh(100_000))
	clk.advance(cfg.RedemptionDelay + time.Minute)
	markVault(t, m, jt, 1, tr(900_000)) // 10% junior loss during the delay

	res, err := m.Redeem("alice", req.ID, sh(100_000))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Value != nv(90_000) {
		t.Errorf("claim value: got %s, want %s", res.Value, nv(90_000))
	}
}

func TestRedeem_PartialClaims(t *testing.T) {
	cfg := marketConfig()
	m, _, _, clk := newTestMarket(t, cfg, 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))

	req, _ := m.RequestRedeem("alice", sh(100_000))
	clk.advance(cfg.RedemptionDelay + time.Minute)

	res, err := m.Redeem("alice", req.ID, sh(40_000))
	if err != nil {
		t.Fatalf("partial Redeem: %v", err)
	}
	if res.Remaining != sh(60_000) {
		t.Errorf("remaining: got %s, want 60000.000000", res.Remaining)
	}

	if _, err := m.Redeem("alice", req.ID, sh(60_001)); appCode(err) != apperrors.ErrInsufficientRedeemable {
		t.Errorf("over-claim: got %v, want INSUFFICIENT_REDEEMABLE_SHARES", err)
	}

	if _, err := m.Redeem("alice", req.ID, sh(60_000)); err != nil {
		t.Fatalf("final Redeem: %v", err)
	}
	if _, err := m.Request("alice", req.ID); appCode(err) != apperrors.ErrNotFound {
		t.Errorf("request after full claim: got %v, want NOT_FOUND", err)
	}
}

func TestCancelRedeem_TwoPhase(t *testing.T) {
	m, _, _, _ := newTestMarket(t, marketConfig(), 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	req, _ := m.RequestRedeem("alice", sh(100_000))

	// Claiming the shares back requires the cancel first.
	if _, err := m.ClaimCancelRedeemRequest("alice", req.ID); appCode(err) != apperrors.ErrRequestNotClaimable {
		t.Errorf("claim-cancel before cancel: got %v, want REQUEST_NOT_CLAIMABLE", err)
	}

	if err := m.CancelRedeemRequest("alice", req.ID); err != nil {
		t.Fatalf("CancelRedeemRequest: %v", err)
	}
	if _, err := m.Redeem("alice", req.ID, sh(100_000)); appCode(err) != apperrors.ErrRequestCancelled {
		t.Errorf("claim of cancelled request: got %v, want REQUEST_CANCELLED", err)
	}

	returned, err := m.ClaimCancelRedeemRequest("alice", req.ID)
	if err != nil {
		t.Fatalf("ClaimCancelRedeemRequest: %v", err)
	}
	if returned != sh(100_000) {
		t.Errorf("returned shares: got %s, want 100000.000000", returned)
	}
	if got := m.MaxRedeem(accounting.TrancheJunior, "alice"); got != sh(1_000_000) {
		t.Errorf("balance after cancel claim: got %s, want 1000000.000000", got)
	}
}

func TestRequestRedeem_OtherControllerCannotTouch(t *testing.T) {
	m, _, _, _ := newTestMarket(t, marketConfig(), 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	req, _ := m.RequestRedeem("alice", sh(100_000))

	if err := m.CancelRedeemRequest("mallory", req.ID); appCode(err) != apperrors.ErrNotFound {
		t.Errorf("foreign cancel: got %v, want NOT_FOUND", err)
	}
}

// ============================================================================
// Test: marks and fees
// ============================================================================

func TestApplyMark_StaleMarkDoesNotSync(t *testing.T) {
	m, _, jt, _ := newTestMarket(t, marketConfig(), 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(100_000))
	markVault(t, m, jt, 3, tr(100_000))
	before := m.Ledger().Version

	applied, err := m.ApplyMark(venue.Mark{VenueID: "vault-jt", Sequence: 3, Value: tr(90_000)})
	if err != nil {
		t.Fatalf("ApplyMark: %v", err)
	}
	if applied {
		t.Error("stale mark should be dropped")
	}
	if got := m.Ledger().Version; got != before {
		t.Errorf("ledger version moved on stale mark: %d -> %d", before, got)
	}
}

func TestClaimFees_WithdrawsCarveOutFromVenue(t *testing.T) {
	cfg := marketConfig()
	cfg.SeniorFeeRate = 100_000 // 10%
	m, st, _, _ := newTestMarket(t, cfg, 0)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	mustDeposit(t, m, accounting.TrancheSenior, "bob", tr(300_000))

	markVault(t, m, st, 1, tr(310_000)) // 10k senior yield, 1k fee

	payment, err := m.ClaimFees(accounting.TrancheSenior)
	if err != nil {
		t.Fatalf("ClaimFees: %v", err)
	}
	if payment.Value != nv(1_000) {
		t.Errorf("fee value: got %s, want %s", payment.Value, nv(1_000))
	}
	if payment.Recipient != "fee-recipient" {
		t.Errorf("recipient: got %s", payment.Recipient)
	}
	if got := st.RawNAV(); got != tr(309_000) {
		t.Errorf("venue value after fee claim: got %s, want %s", got, tr(309_000))
	}

	// The claim must not read as venue P&L on the next sync.
	before := m.Ledger()
	res := m.SyncNow()
	if res.STEffectiveNAV != before.STEffectiveNAV {
		t.Errorf("senior effective moved on post-claim sync: %s -> %s", before.STEffectiveNAV, res.STEffectiveNAV)
	}

	if _, err := m.ClaimFees(accounting.TrancheSenior); appCode(err) != apperrors.ErrNotFound {
		t.Errorf("second claim: got %v, want NOT_FOUND", err)
	}
}

// ============================================================================
// Test: restore
// ============================================================================

func TestRestore_RebuildsMarketState(t *testing.T) {
	cfg := marketConfig()
	m, st, jt, clk := newTestMarket(t, cfg, 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	mustDeposit(t, m, accounting.TrancheSenior, "bob", tr(300_000))
	req, _ := m.RequestRedeem("alice", sh(100_000))

	// Bring up a second instance from the persisted artifacts.
	model, _ := ydm.NewFlatShare(500_000)
	st2 := venue.NewVault("vault-st", units.DefaultUnitConfig)
	jt2 := venue.NewVault("vault-jt", units.DefaultUnitConfig)

	restored, err := kernel.NewMarket(cfg, model, st2, jt2, kernel.WithClock(clk.now))
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}

	reqCopy := req
	err = restored.Restore(m.Ledger(), []venue.State{st.State(), jt.State()}, []shares.BalanceRecord{
		{Account: "alice", Tranche: accounting.TrancheJunior, Balance: sh(900_000), Escrowed: sh(100_000)},
		{Account: "bob", Tranche: accounting.TrancheSenior, Balance: sh(300_000)},
	}, []kernel.RedemptionRequest{reqCopy}, req.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := st2.RawNAV(); got != tr(300_000) {
		t.Errorf("senior venue after restore: got %s, want %s", got, tr(300_000))
	}
	if got := jt2.RawNAV(); got != tr(1_000_000) {
		t.Errorf("junior venue after restore: got %s, want %s", got, tr(1_000_000))
	}

	got, err := restored.Request("alice", req.ID)
	if err != nil {
		t.Fatalf("Request after restore: %v", err)
	}
	if got.Shares != sh(100_000) || got.NAVPerShare != req.NAVPerShare {
		t.Errorf("restored request: got %+v", got)
	}

	// A new request continues the id sequence instead of reusing it.
	req2, err := restored.RequestRedeem("alice", sh(50_000))
	if err != nil {
		t.Fatalf("RequestRedeem after restore: %v", err)
	}
	if req2.ID != req.ID+1 {
		t.Errorf("next request id: got %d, want %d", req2.ID, req.ID+1)
	}
}

func TestRestore_FirstSyncSeesRestoredVenueValue(t *testing.T) {
	cfg := marketConfig()
	m, st, jt, clk := newTestMarket(t, cfg, 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))
	mustDeposit(t, m, accounting.TrancheSenior, "bob", tr(300_000))
	markVault(t, m, jt, 1, tr(1_000_000))
	before := m.Ledger()

	model, _ := ydm.NewFlatShare(500_000)
	st2 := venue.NewVault("vault-st", units.DefaultUnitConfig)
	jt2 := venue.NewVault("vault-jt", units.DefaultUnitConfig)
	restored, err := kernel.NewMarket(cfg, model, st2, jt2, kernel.WithClock(clk.now))
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	err = restored.Restore(before, []venue.State{st.State(), jt.State()}, nil, nil, 0)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// The first sync after a restart must read the persisted venue values,
	// not zeroes: the book stays where it was and no loss is recorded.
	res := restored.SyncNow()
	if res.STEffectiveNAV != before.STEffectiveNAV || res.JTEffectiveNAV != before.JTEffectiveNAV {
		t.Errorf("effective NAVs moved on restart sync: st=%s jt=%s, want st=%s jt=%s",
			res.STEffectiveNAV, res.JTEffectiveNAV, before.STEffectiveNAV, before.JTEffectiveNAV)
	}
	if res.STCoverageDebt != 0 || res.JTCoverageDebt != 0 {
		t.Errorf("coverage debt on restart sync: st=%s jt=%s, want 0", res.STCoverageDebt, res.JTCoverageDebt)
	}

	// Mark sequences survive too: a replayed mark is dropped as stale.
	applied, err := restored.ApplyMark(venue.Mark{VenueID: "vault-jt", Sequence: 1, Value: tr(900_000)})
	if err != nil {
		t.Fatalf("ApplyMark: %v", err)
	}
	if applied {
		t.Error("replayed mark should be dropped after restore")
	}
}

func TestRestore_RejectsUnknownVenueState(t *testing.T) {
	cfg := marketConfig()
	m, _, _, clk := newTestMarket(t, cfg, 500_000)
	mustDeposit(t, m, accounting.TrancheJunior, "alice", tr(1_000_000))

	model, _ := ydm.NewFlatShare(500_000)
	st2 := venue.NewVault("vault-st", units.DefaultUnitConfig)
	jt2 := venue.NewVault("vault-jt", units.DefaultUnitConfig)
	restored, _ := kernel.NewMarket(cfg, model, st2, jt2, kernel.WithClock(clk.now))

	err := restored.Restore(m.Ledger(), []venue.State{{VenueID: "vault-other", Value: tr(1)}}, nil, nil, 0)
	if err == nil {
		t.Error("venue state for an unattached venue should be rejected")
	}
}
