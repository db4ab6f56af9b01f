// Package transport exposes the event log over HTTP.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/revealer/internal/events"
	"github.com/pendergraft/revealer/internal/storage"
	"github.com/pendergraft/revealer/internal/validation"
)

// Service lists emitted events.
type Service interface {
	List(ctx context.Context, filter storage.EventFilter, pagination storage.PaginationParams) (*events.Page, error)
}

// Handler handles HTTP requests for the event log.
type Handler struct {
	svc Service
}

// NewHandler creates a new events HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the event log routes (no auth required).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.EventFilter{Name: q.Get("name")}
	switch events.Name(filter.Name) {
	case "", events.Requested, events.Fulfilled:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_EVENT_NAME", "name must be Requested or Fulfilled")
		return
	}
	if raw := q.Get("request_id"); raw != "" {
		id, err := validation.ParseRequestID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST_ID", err.Error())
			return
		}
		filter.RequestID = id.Hex()
	}

	pagination := storage.PaginationParams{Cursor: q.Get("cursor")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		pagination.Limit = limit
	}

	page, err := h.svc.List(r.Context(), filter, pagination)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
