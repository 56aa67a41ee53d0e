package rpc

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.registry.Tiers()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Tiers = make([]tierView, 0, len(tiers))
	for _, cfg := range tiers {
		resp.Tiers = append(resp.Tiers, tierViewFrom(cfg))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTier(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(chi.URLParam(r, "tier"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requirement, err := s.registry.TierRequirement(tier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	multiplier, err := s.registry.TierMultiplier(tier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Tier = tierPtr(tier)
	resp.Requirement = amountString(requirement)
	resp.Multiplier = multiplier
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetTierRequirement(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(chi.URLParam(r, "tier"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req requirementRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	required, err := parseAmount("requiredBalance", req.RequiredBalance)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.SetTierRequirement(tier, required); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Tier = tierPtr(tier)
	resp.Requirement = required.String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetTierMultiplier(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(chi.URLParam(r, "tier"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req multiplierRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.SetTierMultiplier(tier, req.Multiplier); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Tier = tierPtr(tier)
	resp.Multiplier = req.Multiplier
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDetermineTier(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := parseAmount("balance", req.Balance)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tier, err := s.registry.DetermineTier(balance)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Tier = tierPtr(tier)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := validIdentifier("user", chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.ledger.Account(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tier, err := s.registry.UserTier(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view := &accountView{
		User:    account.User,
		Balance: amountString(account.Balance),
		Staked:  amountString(account.Staked),
		Tier:    uint8(tier),
	}
	if !account.StakingStart.IsZero() {
		view.StakingStartMillis = account.StakingStart.UnixMilli()
	}
	resp := success()
	resp.Account = view
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateUserTier(w http.ResponseWriter, r *http.Request) {
	user, err := validIdentifier("user", chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req balanceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := parseAmount("balance", req.Balance)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tier, err := s.registry.UpdateUserTier(user, balance)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Tier = tierPtr(tier)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdjustedAmount(w http.ResponseWriter, r *http.Request) {
	user, err := validIdentifier("user", chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req adjustedAmountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	base, err := parseAmount("baseAmount", req.BaseAmount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	adjusted, err := s.registry.AdjustedAmount(user, base)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Amount = adjusted.String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.moveTokens(w, r, s.ledger.RedeemTokens)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	s.moveTokens(w, r, s.ledger.StakeTokens)
}

// moveTokens runs a user-scoped amount operation and reports the remaining
// spendable balance.
func (s *Server) moveTokens(w http.ResponseWriter, r *http.Request, op func(string, *big.Int) error) {
	user, err := validIdentifier("user", chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := op(user, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeWithBalance(w, r, user, amount.String())
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	user, err := validIdentifier("user", chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.ledger.UnstakeTokens(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	elapsed := result.Elapsed.Milliseconds()
	resp := success()
	resp.Amount = amountString(result.Total)
	resp.Principal = amountString(result.Principal)
	resp.Bonus = amountString(result.Bonus)
	resp.ElapsedMs = &elapsed
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBusiness(w http.ResponseWriter, r *http.Request) {
	business, err := validIdentifier("business", chi.URLParam(r, "business"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	registered, err := s.ledger.IsBusiness(business)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Registered = &registered
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterBusiness(w http.ResponseWriter, r *http.Request) {
	business, err := validIdentifier("business", chi.URLParam(r, "business"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.RegisterBusiness(business); err != nil {
		s.writeError(w, r, err)
		return
	}
	registered := true
	resp := success()
	resp.Registered = &registered
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	business, err := validIdentifier("business", req.Business)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient, err := validIdentifier("recipient", req.Recipient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.MintAndDistribute(business, recipient, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeWithBalance(w, r, recipient, amount.String())
}

func (s *Server) writeWithBalance(w http.ResponseWriter, r *http.Request, user, amount string) {
	balance, err := s.ledger.Balance(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Amount = amount
	resp.Balance = balance.String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeStatus(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(n, maxJournalLimit)
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := success()
	resp.Entries = make([]journalEntry, 0, len(entries))
	for _, e := range entries {
		resp.Entries = append(resp.Entries, journalEntryFrom(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
