package kernel

import (
	"time"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/apperrors"
	"TrancheVault/internal/shares"
	"TrancheVault/internal/tmath"
	"TrancheVault/internal/units"
)

// DepositResult reports the value credited and shares minted by a deposit.
type DepositResult struct {
	Value  units.NAV
	Shares units.Shares
}

// RedeemResult reports a completed redemption or claim.
type RedeemResult struct {
	Shares    units.Shares
	Value     units.NAV
	Amount    units.Tranche
	Remaining units.Shares // unclaimed remainder of the request, async path only
}

// Deposit executes a tranche deposit: pre-sync, coverage/state gate, venue
// call, share mint, post-operation re-baseline.
func (m *Market) Deposit(t accounting.TrancheID, account string, amount units.Tranche) (DepositResult, error) {
	started := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount <= 0 || account == "" {
		return DepositResult{}, apperrors.Newf(apperrors.ErrInvalidRequest, "deposit needs a positive amount and an account")
	}

	now := m.clock()
	pre := m.syncLocked(now, "pre_op")
	m.emitLocked(Update{Synced: &pre})
	led := m.acct.Ledger()

	value := m.venues[t].Units().ToNAV(amount, units.RoundDown)

	switch t {
	case accounting.TrancheSenior:
		capacity := tmath.SeniorCapacity(led.JTEffectiveNAV, m.acct.Config().CoverageRatio)
		headroom := units.SubSaturate(capacity, led.STEffectiveNAV)
		if value > headroom {
			return DepositResult{}, m.rejectOp("deposit", apperrors.Newf(apperrors.ErrCoverageExceeded,
				"senior deposit %s exceeds coverage headroom %s", value, headroom), started)
		}
	case accounting.TrancheJunior:
		if led.State == accounting.StateFixedTerm {
			return DepositResult{}, m.rejectOp("deposit", apperrors.Newf(apperrors.ErrFixedTermLocked,
				"junior deposits are locked while market %s is in FIXED_TERM", m.ID()), started)
		}
	}

	// Reject a dust deposit before the venue call so nothing is credited
	// when no shares would mint.
	nps := units.NAVPerShare(led.EffectiveNAV(t), m.registry.TotalSupply(t), units.RoundDown)
	minted := units.SharesForValue(value, nps, units.RoundDown)
	if minted <= 0 {
		return DepositResult{}, m.rejectOp("deposit", apperrors.Newf(apperrors.ErrInvalidRequest,
			"deposit of %s mints no shares", value), started)
	}

	if err := m.venues[t].Deposit(amount); err != nil {
		m.recordOp("deposit", "error", started)
		return DepositResult{}, apperrors.New(apperrors.ErrVenue, err.Error(), err)
	}
	if err := m.registry.Mint(t, account, minted); err != nil {
		m.recordOp("deposit", "error", started)
		return DepositResult{}, apperrors.Wrap(err)
	}

	m.acct.ApplyDeposit(t, value)
	m.emitLocked(Update{Balances: []shares.BalanceRecord{m.balanceRecord(t, account)}})
	m.recordOp("deposit", "ok", started)

	m.log.Info().
		Str("market_id", m.ID()).
		Str("tranche", t.String()).
		Str("account", account).
		Str("value", value.String()).
		Str("shares", minted.String()).
		Msg("deposit executed")

	return DepositResult{Value: value, Shares: minted}, nil
}

// SeniorRedeem is the synchronous senior redemption path. It is gated off
// entirely while the market is in FIXED_TERM.
func (m *Market) SeniorRedeem(account string, amount units.Shares) (RedeemResult, error) {
	started := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount <= 0 || account == "" {
		return RedeemResult{}, apperrors.Newf(apperrors.ErrInvalidRequest, "redeem needs a positive share amount and an account")
	}

	now := m.clock()
	pre := m.syncLocked(now, "pre_op")
	m.emitLocked(Update{Synced: &pre})
	led := m.acct.Ledger()

	if led.State == accounting.StateFixedTerm {
		return RedeemResult{}, m.rejectOp("senior_redeem", apperrors.Newf(apperrors.ErrFixedTermLocked,
			"senior redemptions are locked while market %s is in FIXED_TERM", m.ID()), started)
	}
	if bal := m.registry.BalanceOf(accounting.TrancheSenior, account); amount > bal {
		return RedeemResult{}, m.rejectOp("senior_redeem", apperrors.Newf(apperrors.ErrInsufficientBalance,
			"account %s holds %s senior shares, redeeming %s", account, bal, amount), started)
	}

	nps := units.NAVPerShare(led.STEffectiveNAV, m.registry.TotalSupply(accounting.TrancheSenior), units.RoundDown)
	value := units.ValueForShares(amount, nps, units.RoundDown)

	paid, err := m.payOutLocked(accounting.TrancheSenior, led, value)
	if err != nil {
		m.recordOp("senior_redeem", "error", started)
		return RedeemResult{}, err
	}
	if err := m.registry.Burn(accounting.TrancheSenior, account, amount); err != nil {
		m.recordOp("senior_redeem", "error", started)
		return RedeemResult{}, apperrors.Wrap(err)
	}

	m.emitLocked(Update{Balances: []shares.BalanceRecord{m.balanceRecord(accounting.TrancheSenior, account)}})
	m.recordOp("senior_redeem", "ok", started)

	m.log.Info().
		Str("market_id", m.ID()).
		Str("account", account).
		Str("shares", amount.String()).
		Str("value", value.String()).
		Msg("senior redemption executed")

	return RedeemResult{Shares: amount, Value: value, Amount: paid}, nil
}

// RequestRedeem opens a junior redemption request: shares move to escrow,
// the share price is snapshotted, and the claim unlocks after the delay.
func (m *Market) RequestRedeem(controller string, amount units.Shares) (RedemptionRequest, error) {
	started := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount <= 0 || controller == "" {
		return RedemptionRequest{}, apperrors.Newf(apperrors.ErrInvalidRequest, "redemption request needs a positive share amount and a controller")
	}

	now := m.clock()
	pre := m.syncLocked(now, "pre_op")
	m.emitLocked(Update{Synced: &pre})
	led := m.acct.Ledger()

	if max := m.juniorMaxRedeemLocked(led, controller); amount > max {
		return RedemptionRequest{}, m.rejectOp("request_redeem", apperrors.Newf(apperrors.ErrInsufficientRedeemable,
			"controller %s may redeem at most %s junior shares, requested %s", controller, max, amount), started)
	}
	if err := m.registry.Escrow(accounting.TrancheJunior, controller, amount); err != nil {
		m.recordOp("request_redeem", "error", started)
		return RedemptionRequest{}, apperrors.Wrap(err)
	}

	req := &RedemptionRequest{
		ID:             m.nextRequestID,
		MarketID:       m.ID(),
		Controller:     controller,
		Shares:         amount,
		NAVPerShare:    units.NAVPerShare(led.JTEffectiveNAV, m.registry.TotalSupply(accounting.TrancheJunior), units.RoundDown),
		ClaimableAfter: now.Add(m.acct.Config().RedemptionDelay).UnixMilli(),
		CreatedAt:      now.UnixMilli(),
		Status:         StatusOpen,
	}
	m.nextRequestID++
	m.requests[req.ID] = req

	reqCopy := *req
	m.emitLocked(Update{
		Request:  &reqCopy,
		Balances: []shares.BalanceRecord{m.balanceRecord(accounting.TrancheJunior, controller)},
	})
	m.queueMetricsLocked("created")
	m.recordOp("request_redeem", "ok", started)

	m.log.Info().
		Str("market_id", m.ID()).
		Str("controller", controller).
		Uint64("request_id", req.ID).
		Str("shares", amount.String()).
		Str("nav_per_share", req.NAVPerShare.String()).
		Msg("redemption requested")

	return reqCopy, nil
}

// Redeem claims part or all of a matured redemption request. The payout is
// priced at min(snapshot, current) NAV per share: the claimant cannot profit
// from appreciation during the delay but bears any loss from it.
func (m *Market) Redeem(controller string, requestID uint64, amount units.Shares) (RedeemResult, error) {
	started := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount <= 0 {
		return RedeemResult{}, apperrors.Newf(apperrors.ErrInvalidRequest, "claim needs a positive share amount")
	}

	now := m.clock()
	pre := m.syncLocked(now, "pre_op")
	m.emitLocked(Update{Synced: &pre})
	led := m.acct.Ledger()

	req, err := m.requestLocked(controller, requestID)
	if err != nil {
		m.recordOp("redeem", "rejected", started)
		return RedeemResult{}, err
	}
	if req.Status == StatusCancelled {
		return RedeemResult{}, m.rejectOp("redeem", apperrors.Newf(apperrors.ErrRequestCancelled,
			"redemption request %d is cancelled", requestID), started)
	}
	if now.UnixMilli() < req.ClaimableAfter {
		return RedeemResult{}, m.rejectOp("redeem", apperrors.Newf(apperrors.ErrInsufficientRedeemable,
			"redemption request %d is not claimable until %d", requestID, req.ClaimableAfter), started)
	}
	if amount > req.Shares {
		return RedeemResult{}, m.rejectOp("redeem", apperrors.Newf(apperrors.ErrInsufficientRedeemable,
			"redemption request %d has %s shares remaining, claiming %s", requestID, req.Shares, amount), started)
	}

	currentNPS := units.NAVPerShare(led.JTEffectiveNAV, m.registry.TotalSupply(accounting.TrancheJunior), units.RoundDown)
	nps := units.MinNAV(req.NAVPerShare, currentNPS)
	value := units.ValueForShares(amount, nps, units.RoundDown)

	paid, err := m.payOutLocked(accounting.TrancheJunior, led, value)
	if err != nil {
		m.recordOp("redeem", "error", started)
		return RedeemResult{}, err
	}
	if err := m.registry.BurnEscrow(accounting.TrancheJunior, controller, amount); err != nil {
		m.recordOp("redeem", "error", started)
		return RedeemResult{}, apperrors.Wrap(err)
	}

	req.Shares -= amount
	transition := "claimed_partial"
	if req.Shares == 0 {
		req.Status = StatusClosed
		delete(m.requests, requestID)
		transition = "claimed"
	}

	reqCopy := *req
	m.emitLocked(Update{
		Request:  &reqCopy,
		Balances: []shares.BalanceRecord{m.balanceRecord(accounting.TrancheJunior, controller)},
	})
	m.queueMetricsLocked(transition)
	m.recordOp("redeem", "ok", started)

	m.log.Info().
		Str("market_id", m.ID()).
		Str("controller", controller).
		Uint64("request_id", requestID).
		Str("shares", amount.String()).
		Str("value", value.String()).
		Str("nav_per_share", nps.String()).
		Msg("redemption claimed")

	return RedeemResult{Shares: amount, Value: value, Amount: paid, Remaining: req.Shares}, nil
}

// CancelRedeemRequest marks a request cancelled. The escrowed shares are
// returned by the follow-up ClaimCancelRedeemRequest; the two phases mirror
// the request/claim pattern even though cancellation has no delay.
func (m *Market) CancelRedeemRequest(controller string, requestID uint64) error {
	started := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.requestLocked(controller, requestID)
	if err != nil {
		m.recordOp("cancel_redeem", "rejected", started)
		return err
	}
	if req.Status == StatusCancelled {
		return m.rejectOp("cancel_redeem", apperrors.Newf(apperrors.ErrRequestCancelled,
			"redemption request %d is already cancelled", requestID), started)
	}

	req.Status = StatusCancelled
	reqCopy := *req
	m.emitLocked(Update{Request: &reqCopy})
	m.queueMetricsLocked("cancelled")
	m.recordOp("cancel_redeem", "ok", started)

	m.log.Info().
		Str("market_id", m.ID()).
		Str("controller", controller).
		Uint64("request_id", requestID).
		Msg("redemption request cancelled")
	return nil
}

// ClaimCancelRedeemRequest returns the escrowed shares of a cancelled
// request and closes it.
func (m *Market) ClaimCancelRedeemRequest(controller string, requestID uint64) (units.Shares, error) {
	started := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.requestLocked(controller, requestID)
	if err != nil {
		m.recordOp("claim_cancel", "rejected", started)
		return 0, err
	}
	if req.Status != StatusCancelled {
		return 0, m.rejectOp("claim_cancel", apperrors.Newf(apperrors.ErrRequestNotClaimable,
			"redemption request %d is not cancelled", requestID), started)
	}

	returned := req.Shares
	if err := m.registry.ReleaseEscrow(accounting.TrancheJunior, controller, returned); err != nil {
		m.recordOp("claim_cancel", "error", started)
		return 0, apperrors.Wrap(err)
	}

	req.Shares = 0
	req.Status = StatusClosed
	delete(m.requests, requestID)

	reqCopy := *req
	m.emitLocked(Update{
		Request:  &reqCopy,
		Balances: []shares.BalanceRecord{m.balanceRecord(accounting.TrancheJunior, controller)},
	})
	m.queueMetricsLocked("cancel_claimed")
	m.recordOp("claim_cancel", "ok", started)

	m.log.Info().
		Str("market_id", m.ID()).
		Str("controller", controller).
		Uint64("request_id", requestID).
		Str("shares", returned.String()).
		Msg("cancelled redemption claimed")
	return returned, nil
}

// ClaimFees withdraws a tranche's accrued protocol fees from its venue and
// pays them to the configured recipient.
func (m *Market) ClaimFees(t accounting.TrancheID) (FeePayment, error) {
	started := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	led := m.acct.Ledger()
	owed := led.STFeesOwed
	if t == accounting.TrancheJunior {
		owed = led.JTFeesOwed
	}
	if owed == 0 {
		return FeePayment{}, apperrors.Newf(apperrors.ErrNotFound, "no %s fees accrued for market %s", t, m.ID())
	}

	amount := m.venues[t].Units().FromNAV(owed, units.RoundDown)
	if err := m.venues[t].Withdraw(amount); err != nil {
		m.recordOp("claim_fees", "error", started)
		return FeePayment{}, apperrors.New(apperrors.ErrVenue, err.Error(), err)
	}
	m.acct.TakeFees(t)

	payment := FeePayment{
		Tranche:   t,
		Recipient: m.acct.Config().FeeRecipient,
		Value:     owed,
		Amount:    amount,
	}
	m.emitLocked(Update{FeePaid: &payment})
	m.recordOp("claim_fees", "ok", started)

	m.log.Info().
		Str("market_id", m.ID()).
		Str("tranche", t.String()).
		Str("recipient", payment.Recipient).
		Str("value", owed.String()).
		Msg("protocol fees claimed")
	return payment, nil
}

// payOutLocked withdraws a claim's value from the venues per the asset
// split and re-baselines the ledger. The counter-venue slice is drawn only
// while cross-tranche coverage is active.
func (m *Market) payOutLocked(t accounting.TrancheID, led accounting.Ledger, value units.NAV) (units.Tranche, error) {
	claims := led.ClaimsFor(t, value)
	counter := accounting.TrancheJunior
	if t == accounting.TrancheJunior {
		counter = accounting.TrancheSenior
	}

	var paid units.Tranche
	if claims.OwnAsset > 0 {
		amount := m.venues[t].Units().FromNAV(claims.OwnAsset, units.RoundDown)
		if err := m.venues[t].Withdraw(amount); err != nil {
			return 0, apperrors.New(apperrors.ErrVenue, err.Error(), err)
		}
		paid += amount
	}
	if claims.CounterAsset > 0 {
		amount := m.venues[counter].Units().FromNAV(claims.CounterAsset, units.RoundDown)
		if err := m.venues[counter].Withdraw(amount); err != nil {
			// Roll the own-venue leg back so the abort is all-or-nothing.
			if claims.OwnAsset > 0 {
				if rbErr := m.venues[t].Deposit(m.venues[t].Units().FromNAV(claims.OwnAsset, units.RoundDown)); rbErr != nil {
					m.log.Error().Err(rbErr).Str("market_id", m.ID()).Msg("venue rollback failed")
				}
			}
			return 0, apperrors.New(apperrors.ErrVenue, err.Error(), err)
		}
		paid += amount
	}

	if err := m.acct.ApplyWithdrawal(t, claims); err != nil {
		return 0, apperrors.Wrap(err)
	}
	return paid, nil
}

func (m *Market) balanceRecord(t accounting.TrancheID, account string) shares.BalanceRecord {
	return shares.BalanceRecord{
		Account:  account,
		Tranche:  t,
		Balance:  m.registry.BalanceOf(t, account),
		Escrowed: m.registry.EscrowedOf(t, account),
	}
}

func (m *Market) queueMetricsLocked(transition string) {
	if m.metrics == nil {
		return
	}
	id := m.ID()
	m.metrics.RedemptionRequests.WithLabelValues(id, transition).Inc()
	m.metrics.RedemptionQueueLen.WithLabelValues(id).Set(float64(len(m.requests)))
	escrowed := m.registry.TotalEscrowed(accounting.TrancheJunior)
	m.metrics.EscrowedShares.WithLabelValues(id).Set(float64(escrowed) / float64(units.ShareScale))
}
