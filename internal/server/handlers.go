package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/apperrors"
	"TrancheVault/internal/ingestion"
	"TrancheVault/internal/kernel"
	"TrancheVault/internal/units"
)

// Handler serves the market API. Human-entered amounts arrive as decimal
// strings and are converted to the venue's fixed-point representation;
// everything returned is fixed-point integers plus a decimal string echo.
type Handler struct {
	kernel   *kernel.Kernel
	injector *ingestion.Injector
	log      zerolog.Logger
}

func NewHandler(k *kernel.Kernel, injector *ingestion.Injector, log zerolog.Logger) *Handler {
	return &Handler{kernel: k, injector: injector, log: log}
}

// --- amount parsing ---

// parseAmount converts a decimal string into tranche units, rejecting
// precision beyond the venue's decimals.
func parseAmount(s string, ucfg units.UnitConfig) (units.Tranche, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidRequest, "bad amount %q: %v", s, err)
	}
	shifted := d.Shift(int32(ucfg.Decimals))
	if !shifted.IsInteger() {
		return 0, apperrors.Newf(apperrors.ErrInvalidRequest, "amount %q has more than %d decimals", s, ucfg.Decimals)
	}
	bi := shifted.BigInt()
	if !bi.IsInt64() {
		return 0, apperrors.Newf(apperrors.ErrInvalidRequest, "amount %q out of range", s)
	}
	return units.Tranche(bi.Int64()), nil
}

// parseShares converts a decimal string into share units (6 decimals).
func parseShares(s string) (units.Shares, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidRequest, "bad share amount %q: %v", s, err)
	}
	shifted := d.Shift(6)
	if !shifted.IsInteger() {
		return 0, apperrors.Newf(apperrors.ErrInvalidRequest, "share amount %q has more than 6 decimals", s)
	}
	bi := shifted.BigInt()
	if !bi.IsInt64() {
		return 0, apperrors.Newf(apperrors.ErrInvalidRequest, "share amount %q out of range", s)
	}
	return units.Shares(bi.Int64()), nil
}

func decimalString(v int64, decimals int) string {
	return decimal.New(v, -int32(decimals)).String()
}

func parseTranche(s string) (accounting.TrancheID, error) {
	t, err := accounting.ParseTrancheID(s)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err)
	}
	return t, nil
}

func (h *Handler) market(c *gin.Context) (*kernel.Market, bool) {
	m, err := h.kernel.Market(c.Param("id"))
	if err != nil {
		c.Error(err)
		return nil, false
	}
	return m, true
}

// --- markets ---

func (h *Handler) ListMarkets(c *gin.Context) {
	type marketInfo struct {
		MarketID    string `json:"market_id"`
		State       string `json:"state"`
		Version     int64  `json:"version"`
		SeniorVenue string `json:"senior_venue"`
		JuniorVenue string `json:"junior_venue"`
	}

	markets := h.kernel.Markets()
	out := make([]marketInfo, 0, len(markets))
	for _, m := range markets {
		led := m.Ledger()
		st, jt := m.VenueIDs()
		out = append(out, marketInfo{
			MarketID:    m.ID(),
			State:       led.State.String(),
			Version:     led.Version,
			SeniorVenue: st,
			JuniorVenue: jt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"markets": out})
}

func (h *Handler) GetLedger(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ledgerResponse(m.Ledger()))
}

func ledgerResponse(l accounting.Ledger) gin.H {
	return gin.H{
		"market_id":             l.MarketID,
		"st_raw_nav":            int64(l.STRawNAV),
		"jt_raw_nav":            int64(l.JTRawNAV),
		"st_effective_nav":      int64(l.STEffectiveNAV),
		"jt_effective_nav":      int64(l.JTEffectiveNAV),
		"st_coverage_debt":      int64(l.STCoverageDebt),
		"jt_coverage_debt":      int64(l.JTCoverageDebt),
		"st_fees_owed":          int64(l.STFeesOwed),
		"jt_fees_owed":          int64(l.JTFeesOwed),
		"jt_loss_carry":         int64(l.JTLossCarry),
		"state":                 l.State.String(),
		"fixed_term_entered_at": l.FixedTermEnteredAt,
		"version":               l.Version,
	}
}

func (h *Handler) GetLimits(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	t, err := parseTranche(c.Query("tranche"))
	if err != nil {
		c.Error(err)
		return
	}
	account := c.Query("account")

	ucfg := m.Units(t)
	maxDeposit := m.MaxDeposit(t)
	maxRedeem := m.MaxRedeem(t, account)
	maxWithdraw := m.MaxWithdraw(t, account)

	c.JSON(http.StatusOK, gin.H{
		"market_id":     m.ID(),
		"tranche":       t.String(),
		"account":       account,
		"max_deposit":   decimalString(int64(maxDeposit), ucfg.Decimals),
		"max_redeem":    decimalString(int64(maxRedeem), 6),
		"max_withdraw":  decimalString(int64(maxWithdraw), ucfg.Decimals),
		"nav_per_share": decimalString(int64(m.NAVPerShare(t)), 6),
	})
}

// --- operations ---

type depositRequest struct {
	Tranche string `json:"tranche" binding:"required"`
	Account string `json:"account" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

func (h *Handler) Deposit(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}
	t, err := parseTranche(req.Tranche)
	if err != nil {
		c.Error(err)
		return
	}
	amount, err := parseAmount(req.Amount, m.Units(t))
	if err != nil {
		c.Error(err)
		return
	}

	res, err := m.Deposit(t, req.Account, amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"value":  int64(res.Value),
		"shares": decimalString(int64(res.Shares), 6),
	})
}

type seniorRedeemRequest struct {
	Account string `json:"account" binding:"required"`
	Shares  string `json:"shares" binding:"required"`
}

func (h *Handler) SeniorRedeem(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	var req seniorRedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}
	amount, err := parseShares(req.Shares)
	if err != nil {
		c.Error(err)
		return
	}

	res, err := m.SeniorRedeem(req.Account, amount)
	if err != nil {
		c.Error(err)
		return
	}
	ucfg := m.Units(accounting.TrancheSenior)
	c.JSON(http.StatusOK, gin.H{
		"shares": decimalString(int64(res.Shares), 6),
		"value":  int64(res.Value),
		"amount": decimalString(int64(res.Amount), ucfg.Decimals),
	})
}

// --- junior redemption queue ---

type redeemRequestBody struct {
	Controller string `json:"controller" binding:"required"`
	Shares     string `json:"shares" binding:"required"`
}

func (h *Handler) RequestRedeem(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	var req redeemRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}
	amount, err := parseShares(req.Shares)
	if err != nil {
		c.Error(err)
		return
	}

	r, err := m.RequestRedeem(req.Controller, amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, requestResponse(r))
}

func requestResponse(r kernel.RedemptionRequest) gin.H {
	return gin.H{
		"request_id":         r.ID,
		"market_id":          r.MarketID,
		"controller":         r.Controller,
		"shares":             decimalString(int64(r.Shares), 6),
		"nav_per_share":      decimalString(int64(r.NAVPerShare), 6),
		"claimable_after_ms": r.ClaimableAfter,
		"created_at_ms":      r.CreatedAt,
		"status":             string(r.Status),
	}
}

func (h *Handler) ListRequests(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	controller := c.Query("controller")
	if controller == "" {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "controller query parameter required"))
		return
	}

	reqs := m.Requests(controller)
	out := make([]gin.H, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, requestResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

type claimBody struct {
	Controller string `json:"controller" binding:"required"`
	Shares     string `json:"shares" binding:"required"`
}

func (h *Handler) Redeem(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	id, err := requestID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req claimBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}
	amount, err := parseShares(req.Shares)
	if err != nil {
		c.Error(err)
		return
	}

	res, err := m.Redeem(req.Controller, id, amount)
	if err != nil {
		c.Error(err)
		return
	}
	ucfg := m.Units(accounting.TrancheJunior)
	c.JSON(http.StatusOK, gin.H{
		"shares":    decimalString(int64(res.Shares), 6),
		"value":     int64(res.Value),
		"amount":    decimalString(int64(res.Amount), ucfg.Decimals),
		"remaining": decimalString(int64(res.Remaining), 6),
	})
}

type controllerBody struct {
	Controller string `json:"controller" binding:"required"`
}

func (h *Handler) CancelRequest(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	id, err := requestID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req controllerBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}

	if err := m.CancelRedeemRequest(req.Controller, id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": id, "status": "cancelled"})
}

func (h *Handler) ClaimCancel(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	id, err := requestID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req controllerBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}

	returned, err := m.ClaimCancelRedeemRequest(req.Controller, id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request_id": id,
		"returned":   decimalString(int64(returned), 6),
	})
}

// --- fees, sync and admin ---

type feeClaimBody struct {
	Tranche string `json:"tranche" binding:"required"`
}

func (h *Handler) ClaimFees(c *gin.Context) {
	m, ok := h.market(c)
	if !ok {
		return
	}
	var req feeClaimBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}
	t, err := parseTranche(req.Tranche)
	if err != nil {
		c.Error(err)
		return
	}

	payment, err := m.ClaimFees(t)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tranche":   payment.Tranche.String(),
		"recipient": payment.Recipient,
		"value":     int64(payment.Value),
		"amount":    decimalString(int64(payment.Amount), m.Units(t).Decimals),
	})
}

func (h *Handler) Sync(c *gin.Context) {
	res, err := h.kernel.SyncMarket(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"market_id": res.MarketID,
		"state":     res.State.String(),
		"version":   res.Version,
	})
}

type markBody struct {
	Sequence uint64  `json:"sequence" binding:"required"`
	Value    *string `json:"value,omitempty"`
	Index    *int64  `json:"index,omitempty"`
}

// InjectMark feeds a manual NAV mark through the ingestion loop. Exactly
// one of value (decimal string) or index (fraction-scaled int) is required.
func (h *Handler) InjectMark(c *gin.Context) {
	if h.injector == nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "mark injection disabled"))
		return
	}
	venueID := c.Param("id")
	var req markBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}
	if (req.Value == nil) == (req.Index == nil) {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "exactly one of value or index required"))
		return
	}

	var err error
	if req.Value != nil {
		var amount units.Tranche
		// Venue decimals are unknown until routing; marks use the default
		// 6-decimal representation on this admin surface.
		amount, err = parseAmount(*req.Value, units.DefaultUnitConfig)
		if err != nil {
			c.Error(err)
			return
		}
		err = h.injector.InjectVaultMark(c.Request.Context(), venueID, req.Sequence, amount)
	} else {
		err = h.injector.InjectLendingMark(c.Request.Context(), venueID, req.Sequence, units.Fraction(*req.Index))
	}
	if err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "%v", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"venue_id": venueID, "sequence": req.Sequence})
}

func requestID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("reqID"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Newf(apperrors.ErrInvalidRequest, "bad request id %q", c.Param("reqID"))
	}
	return id, nil
}
