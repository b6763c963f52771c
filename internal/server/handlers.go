package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"CoverPool/internal/event"
	"CoverPool/internal/pool"
	"CoverPool/internal/query"
)

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func (s *Server) badField(w http.ResponseWriter, field string) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{
		Error:   "BadRequest",
		Message: "invalid or missing field: " + field,
	})
}

func (s *Server) policyID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.badField(w, "id")
		return 0, false
	}
	return id, true
}

// --- Pool state ---

type poolStateResponse struct {
	TotalAssets        amountJSON  `json:"total_assets"`
	TotalShares        string      `json:"total_shares"`
	LockedCoverage     amountJSON  `json:"locked_coverage"`
	AvailableLiquidity amountJSON  `json:"available_liquidity"`
	HeldBalance        amountJSON  `json:"held_balance"`
	Paused             bool        `json:"paused"`
	Params             pool.Params `json:"params"`
	Sequence           int64       `json:"sequence"`
}

func (s *Server) handlePoolState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, poolStateResponse{
		TotalAssets:        renderAmount(s.engine.TotalAssets()),
		TotalShares:        s.engine.TotalShares().String(),
		LockedCoverage:     renderAmount(s.engine.TotalLockedCoverage()),
		AvailableLiquidity: renderAmount(s.engine.AvailableLiquidity()),
		HeldBalance:        renderAmount(s.engine.HeldBalance()),
		Paused:             s.engine.Paused(),
		Params:             s.engine.Params(),
		Sequence:           s.engine.Sequence(),
	})
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		s.badField(w, "address")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":     addr.Hex(),
		"shares":      s.engine.SharesOf(addr).String(),
		"eth_balance": renderAmount(s.engine.EthBalance(addr)),
	})
}

// --- Liquidity ---

type depositRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"` // wei
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.badField(w, "amount")
		return
	}

	shares, err := s.engine.Deposit(caller, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"shares":    shares.String(),
		"deposited": renderAmount(amount),
	})
}

type withdrawRequest struct {
	Caller string `json:"caller"`
	Shares string `json:"shares"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}
	shares, ok := parseAmount(req.Shares)
	if !ok {
		s.badField(w, "shares")
		return
	}

	amount, err := s.engine.Withdraw(caller, shares)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"shares_burned": shares.String(),
		"withdrawn":     renderAmount(amount),
	})
}

// --- Policies ---

type buyPolicyRequest struct {
	Caller          string `json:"caller"`
	Coverage        string `json:"coverage"` // wei
	DurationSeconds int64  `json:"duration_seconds"`
	Premium         string `json:"premium"` // wei, must equal the required premium
}

type policyResponse struct {
	PolicyID uint64     `json:"policy_id"`
	Coverage amountJSON `json:"coverage"`
	Premium  amountJSON `json:"premium"`
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
	Resolved bool       `json:"resolved"`
}

func renderPolicy(p *pool.Policy) policyResponse {
	return policyResponse{
		PolicyID: p.ID,
		Coverage: renderAmount(p.Coverage),
		Premium:  renderAmount(p.Premium),
		Start:    p.Start,
		End:      p.End,
		Resolved: p.Resolved,
	}
}

func (s *Server) handleBuyPolicy(w http.ResponseWriter, r *http.Request) {
	var req buyPolicyRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}
	coverage, ok := parseAmount(req.Coverage)
	if !ok {
		s.badField(w, "coverage")
		return
	}
	premium, ok := parseAmount(req.Premium)
	if !ok {
		s.badField(w, "premium")
		return
	}

	p, err := s.engine.BuyPolicy(caller, coverage, time.Duration(req.DurationSeconds)*time.Second, premium)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, renderPolicy(p))
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleResolvePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := s.policyID(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}

	payout, err := s.engine.ResolvePolicy(caller, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"policy_id": id,
		"payout":    payout,
	})
}

func (s *Server) handleExpirePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := s.policyID(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}

	if err := s.engine.ExpirePolicy(caller, id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"policy_id": id,
		"expired":   true,
	})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := s.policyID(w, r)
	if !ok {
		return
	}
	p, err := s.engine.Policy(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renderPolicy(p))
}

// --- Admin ---

type paramsRequest struct {
	Caller         string `json:"caller"`
	MaxCoverageBps uint64 `json:"max_coverage_bps"`
	PremiumRateBps uint64 `json:"premium_rate_bps"`
	ProtocolFeeBps uint64 `json:"protocol_fee_bps"`
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}

	next := pool.Params{
		MaxCoverageBps: req.MaxCoverageBps,
		PremiumRateBps: req.PremiumRateBps,
		ProtocolFeeBps: req.ProtocolFeeBps,
	}
	if err := s.engine.UpdateParameters(caller, next); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, next)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}
	if err := s.engine.Pause(caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}
	if err := s.engine.Unpause(caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": s.engine.Paused()})
}

type emergencyWithdrawRequest struct {
	Caller string `json:"caller"`
	Target string `json:"target"`
	Amount string `json:"amount"` // wei
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req emergencyWithdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}
	target, ok := parseAddress(req.Target)
	if !ok {
		s.badField(w, "target")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.badField(w, "amount")
		return
	}

	if err := s.engine.EmergencyWithdraw(caller, target, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"target":    target.Hex(),
		"withdrawn": renderAmount(amount),
	})
}

// --- Oracle ---

type outcomeRequest struct {
	Caller   string `json:"caller"`
	PolicyID uint64 `json:"policy_id"`
	Outcome  bool   `json:"outcome"`
}

func (s *Server) handleSetOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}
	if err := s.oracle.SetEvent(caller, req.PolicyID, req.Outcome); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"policy_id": req.PolicyID,
		"outcome":   req.Outcome,
	})
}

// --- Treasury ---

func (s *Server) handleTreasuryState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":         s.treasury.Address().Hex(),
		"balance":         renderAmount(s.treasury.Balance()),
		"total_received":  renderAmount(s.treasury.TotalReceived()),
		"total_withdrawn": renderAmount(s.treasury.TotalWithdrawn()),
	})
}

type treasuryWithdrawRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"` // wei
}

func (s *Server) handleTreasuryWithdraw(w http.ResponseWriter, r *http.Request) {
	var req treasuryWithdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		s.badField(w, "caller")
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		s.badField(w, "to")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.badField(w, "amount")
		return
	}

	if err := s.treasury.Withdrawal(caller, to, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"to":        to.Hex(),
		"withdrawn": renderAmount(amount),
	})
}

// --- Tokens ---

type tokenTransferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := s.policyID(w, r)
	if !ok {
		return
	}
	var req tokenTransferRequest
	if !s.decode(w, r, &req) {
		return
	}
	from, ok := parseAddress(req.From)
	if !ok {
		s.badField(w, "from")
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		s.badField(w, "to")
		return
	}

	if err := s.token.Transfer(from, to, id); err != nil {
		s.writeJSON(w, http.StatusConflict, errorBody{Error: "TransferFailed", Message: err.Error()})
		return
	}

	// Ownership decides who a resolution pays, so transfers go through the
	// event log like every other state change.
	s.engine.EmitEvent(event.TypePolicyTransferred, event.PolicyTransferred{
		PolicyID: id,
		From:     from.Hex(),
		To:       to.Hex(),
	})

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token_id": id,
		"owner":    to.Hex(),
	})
}

func (s *Server) handleTokenOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := s.policyID(w, r)
	if !ok {
		return
	}
	owner, err := s.token.OwnerOf(id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "PolicyNotFound", Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token_id": id,
		"owner":    owner.Hex(),
	})
}

func (s *Server) handleTokensOfOwner(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.URL.Query().Get("owner"))
	if !ok {
		s.badField(w, "owner")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":     addr.Hex(),
		"token_ids": s.token.PoliciesOfOwner(addr),
	})
}

// --- Durable history ---

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func (s *Server) handlePolicyHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryLimit(r)

	if holder := r.URL.Query().Get("holder"); holder != "" {
		addr, ok := parseAddress(holder)
		if !ok {
			s.badField(w, "holder")
			return
		}
		records, err := s.reader.ListPoliciesByHolder(ctx, addr.Hex(), limit)
		if err != nil {
			s.writeHistoryError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"policies": records})
		return
	}

	records, err := s.reader.ListOpenPolicies(ctx, limit)
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"policies": records})
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	records, err := s.reader.ListEvents(r.Context(), from, queryLimit(r))
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

func (s *Server) writeHistoryError(w http.ResponseWriter, err error) {
	if err == query.ErrNotFound {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "PolicyNotFound", Message: "no such policy"})
		return
	}
	s.log.Error().Err(err).Msg("history query failed")
	s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal", Message: "query failed"})
}
