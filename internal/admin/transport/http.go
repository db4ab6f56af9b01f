// Package transport provides HTTP handlers for the admin domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/revealer/internal/admin/domain"
	"github.com/pendergraft/revealer/internal/auth"
	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/validation"
)

// Service defines the admin service interface for HTTP transport.
type Service interface {
	Get(ctx context.Context) (*domain.Settings, error)
	SetOracle(ctx context.Context, caller, oracle common.Address) error
	SetOraclePayment(ctx context.Context, caller common.Address, payment *big.Int) error
	SetLink(ctx context.Context, caller, link common.Address) error
	SetSignUpURL(ctx context.Context, caller common.Address, url string) error
	SetJobID(ctx context.Context, caller common.Address, jobID string) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
}

// Handler handles HTTP requests for the admin settings.
type Handler struct {
	svc Service
}

// NewHandler creates a new admin HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers read-only routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleGet)
}

// RegisterWriteRoutes registers the owner-gated setters (caller required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Put("/oracle", h.addressSetter(h.svc.SetOracle))
	r.Put("/link", h.addressSetter(h.svc.SetLink))
	r.Put("/owner", h.addressSetter(h.svc.TransferOwnership))
	r.Put("/payment", h.handleSetPayment)
	r.Put("/sign-up-url", h.handleSetSignUpURL)
	r.Put("/job-id", h.handleSetJobID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSettingsResponse(s))
}

func (h *Handler) addressSetter(set func(ctx context.Context, caller, addr common.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, value, ok := decodeSet(w, r)
		if !ok {
			return
		}
		addr, err := validation.ParseAddress(value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
			return
		}
		h.finish(w, r, set(r.Context(), caller, addr))
	}
}

func (h *Handler) handleSetPayment(w http.ResponseWriter, r *http.Request) {
	caller, value, ok := decodeSet(w, r)
	if !ok {
		return
	}
	amount, err := validation.ParseAmount(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}
	h.finish(w, r, h.svc.SetOraclePayment(r.Context(), caller, amount))
}

func (h *Handler) handleSetSignUpURL(w http.ResponseWriter, r *http.Request) {
	caller, value, ok := decodeSet(w, r)
	if !ok {
		return
	}
	if err := validation.ValidateURL(value); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
		return
	}
	h.finish(w, r, h.svc.SetSignUpURL(r.Context(), caller, value))
}

func (h *Handler) handleSetJobID(w http.ResponseWriter, r *http.Request) {
	caller, value, ok := decodeSet(w, r)
	if !ok {
		return
	}
	h.finish(w, r, h.svc.SetJobID(r.Context(), caller, value))
}

// finish writes the updated settings, or the mapped error.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.handleGet(w, r)
}

func decodeSet(w http.ResponseWriter, r *http.Request) (common.Address, string, bool) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Caller address required")
		return common.Address{}, "", false
	}
	var req SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return common.Address{}, "", false
	}
	return caller, req.Value, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "NOT_OWNER", "Only the owner may change this setting")
	case errors.Is(err, ident.ErrIncorrectLength):
		writeError(w, http.StatusBadRequest, "INCORRECT_LENGTH", err.Error())
	case errors.Is(err, domain.ErrZeroAddress), errors.Is(err, domain.ErrInvalidPayment):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, "NOT_INITIALIZED", "Settings have not been seeded")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process settings")
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
