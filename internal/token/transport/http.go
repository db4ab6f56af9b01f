// Package transport exposes the in-memory token ledger for local development.
// It is only mounted when no RPC endpoint backs the token.
package transport

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/revealer/internal/auth"
	"github.com/pendergraft/revealer/internal/validation"
)

// Ledger is the subset of token.Ledger the handler drives.
type Ledger interface {
	Mint(token, holder common.Address, amount *big.Int)
	Approve(token, owner, spender common.Address, amount *big.Int)
	BalanceOf(token, holder common.Address) *big.Int
	Allowance(token, owner, spender common.Address) *big.Int
}

// TokenSource resolves the configured payment token.
type TokenSource interface {
	TokenAddress(ctx context.Context) (common.Address, error)
}

// AmountRequest is the body of mint and approve.
type AmountRequest struct {
	Amount string `json:"amount"`
}

// AccountResponse describes one holder on the current token.
type AccountResponse struct {
	Token     string `json:"token"`
	Holder    string `json:"holder"`
	Spender   string `json:"spender"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// Handler handles HTTP requests for the development ledger.
type Handler struct {
	ledger  Ledger
	tokens  TokenSource
	spender common.Address
}

// NewHandler creates a ledger handler. Approvals are granted to spender,
// the escrow holder.
func NewHandler(ledger Ledger, tokens TokenSource, spender common.Address) *Handler {
	return &Handler{ledger: ledger, tokens: tokens, spender: spender}
}

// RegisterReadRoutes registers balance lookups (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/{address}", h.handleAccount)
}

// RegisterWriteRoutes registers mint and approve for the caller.
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/mint", h.handleMint)
	r.Post("/approve", h.handleApprove)
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	holder, err := validation.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}
	h.writeAccount(w, r, holder)
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(token, caller common.Address, amount *big.Int) {
		h.ledger.Mint(token, caller, amount)
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(token, caller common.Address, amount *big.Int) {
		h.ledger.Approve(token, caller, h.spender, amount)
	})
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, fn func(token, caller common.Address, amount *big.Int)) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Caller address required")
		return
	}
	var body AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	amount, err := validation.ParseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}
	token, err := h.tokens.TokenAddress(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_INITIALIZED", "Token not configured")
		return
	}
	fn(token, caller, amount)
	h.writeAccount(w, r, caller)
}

func (h *Handler) writeAccount(w http.ResponseWriter, r *http.Request, holder common.Address) {
	token, err := h.tokens.TokenAddress(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_INITIALIZED", "Token not configured")
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{
		Token:     token.Hex(),
		Holder:    holder.Hex(),
		Spender:   h.spender.Hex(),
		Balance:   h.ledger.BalanceOf(token, holder).String(),
		Allowance: h.ledger.Allowance(token, holder, h.spender).String(),
	})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
