// Package transport provides HTTP handlers for verification requests.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/revealer/internal/auth"
	"github.com/pendergraft/revealer/internal/ident"
	oracledomain "github.com/pendergraft/revealer/internal/oracle/domain"
	"github.com/pendergraft/revealer/internal/requests/domain"
	"github.com/pendergraft/revealer/internal/status"
	"github.com/pendergraft/revealer/internal/validation"
)

// Service defines the registry interface for HTTP transport.
type Service interface {
	Cancel(ctx context.Context, caller common.Address, id ident.RequestID) (*domain.Request, error)
	Get(ctx context.Context, id ident.RequestID) (*domain.Request, error)
	Exists(ctx context.Context, id ident.RequestID) (bool, error)
	LatestRequestID(ctx context.Context, requester common.Address) (ident.RequestID, error)
}

// Gateway creates requests through the oracle gateway.
type Gateway interface {
	RequestStatus(ctx context.Context, requester, revealee common.Address) (*domain.Request, error)
}

// Handler handles HTTP requests for verification requests.
type Handler struct {
	svc     Service
	gateway Gateway
}

// NewHandler creates a new requests HTTP handler.
func NewHandler(svc Service, gateway Gateway) *Handler {
	return &Handler{svc: svc, gateway: gateway}
}

// RegisterStatusRoutes registers the status codec routes.
func (h *Handler) RegisterStatusRoutes(r chi.Router) {
	r.Get("/{ordinal}", h.handleStatus)
}

// RegisterReadRoutes registers read-only request routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/{requestId}", h.handleGet)
	r.Get("/{requestId}/exists", h.handleExists)
}

// RegisterRequesterRoutes registers per-requester lookups.
func (h *Handler) RegisterRequesterRoutes(r chi.Router) {
	r.Get("/{address}/latest", h.handleLatest)
}

// RegisterWriteRoutes registers write routes (caller required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Post("/{requestId}/cancel", h.handleCancel)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ordinal, err := strconv.ParseUint(chi.URLParam(r, "ordinal"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_STATUS", "Status ordinal must be a non-negative integer")
		return
	}
	name, err := status.ToDisplayName(ordinal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_STATUS", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Ordinal: ordinal, Name: name})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	req, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRequestResponse(req))
}

func (h *Handler) handleExists(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	exists, err := h.svc.Exists(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExistsResponse{Exists: exists})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	requester, err := validation.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}
	id, err := h.svc.LatestRequestID(r.Context(), requester)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LatestResponse{RequestID: id.Hex()})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Caller address required")
		return
	}

	var body CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	revealee, err := validation.ParseAddress(body.Revealee)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}

	req, err := h.gateway.RequestStatus(r.Context(), caller, revealee)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewRequestResponse(req))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Caller address required")
		return
	}
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	req, err := h.svc.Cancel(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRequestResponse(req))
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (ident.RequestID, bool) {
	id, err := validation.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST_ID", err.Error())
		return ident.RequestID{}, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "REQUEST_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrNoRequestsYet):
		writeError(w, http.StatusNotFound, "NO_REQUESTS_YET", err.Error())
	case errors.Is(err, domain.ErrNotRequestOwner):
		writeError(w, http.StatusForbidden, "NOT_REQUEST_OWNER", err.Error())
	case errors.Is(err, domain.ErrNotYetExpired):
		writeError(w, http.StatusConflict, "NOT_YET_EXPIRED", err.Error())
	case errors.Is(err, domain.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "ALREADY_RESOLVED", err.Error())
	case errors.Is(err, oracledomain.ErrDispatchFailed):
		writeError(w, http.StatusBadGateway, "DISPATCH_FAILED", "Oracle dispatch failed")
	case errors.Is(err, domain.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, "PAYMENT_FAILED", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process request")
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
