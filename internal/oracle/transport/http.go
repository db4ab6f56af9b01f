// Package transport provides HTTP handlers for the oracle gateway.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/revealer/internal/hmacauth"
	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/oracle/domain"
	requestsdomain "github.com/pendergraft/revealer/internal/requests/domain"
	"github.com/pendergraft/revealer/internal/validation"
)

// Service defines the gateway interface for HTTP transport.
type Service interface {
	Fulfill(ctx context.Context, oracle common.Address, id ident.RequestID, ordinal, kycTimestamp uint64) (bool, error)
	Dispatch(ctx context.Context, id ident.RequestID) (*domain.Descriptor, error)
}

// Claimer hands out queued descriptors. Only the local dispatcher has one.
type Claimer interface {
	Claim(oracle common.Address, max int) []domain.Descriptor
}

// Handler handles HTTP requests for the oracle gateway.
type Handler struct {
	svc     Service
	claimer Claimer
}

// NewHandler creates a new oracle HTTP handler. claimer may be nil.
func NewHandler(svc Service, claimer Claimer) *Handler {
	return &Handler{svc: svc, claimer: claimer}
}

// RegisterReadRoutes registers the dispatch log routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/dispatches/{requestId}", h.handleGetDispatch)
}

// RegisterOracleRoutes registers the routes called by the oracle node. They
// must be mounted behind hmacauth.
func (h *Handler) RegisterOracleRoutes(r chi.Router) {
	r.Post("/fulfill", h.handleFulfill)
	if h.claimer != nil {
		r.Post("/claim", h.handleClaim)
	}
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	oracle, ok := hmacauth.OracleFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Oracle address required")
		return
	}

	var req FulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	id, err := validation.ParseRequestID(req.RequestID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST_ID", err.Error())
		return
	}

	accepted, err := h.svc.Fulfill(r.Context(), oracle, id, req.Status, req.KYCTimestamp)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
		case errors.Is(err, domain.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, "INVALID_STATUS", err.Error())
		case errors.Is(err, requestsdomain.ErrNotFound):
			writeError(w, http.StatusNotFound, "REQUEST_NOT_FOUND", err.Error())
		case errors.Is(err, requestsdomain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "ALREADY_RESOLVED", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record fulfillment")
		}
		return
	}

	writeJSON(w, http.StatusOK, FulfillResponse{Accepted: accepted})
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	oracle, ok := hmacauth.OracleFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Oracle address required")
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	writeJSON(w, http.StatusOK, ClaimResponse{Data: h.claimer.Claim(oracle, req.Max)})
}

func (h *Handler) handleGetDispatch(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST_ID", err.Error())
		return
	}

	d, err := h.svc.Dispatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotDispatched) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "No dispatch recorded for request")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get dispatch")
		return
	}
	writeJSON(w, http.StatusOK, d)
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
