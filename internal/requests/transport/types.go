// Package transport provides HTTP request/response types for verification requests.
package transport

import (
	"github.com/pendergraft/revealer/internal/requests/domain"
)

// CreateRequest is the HTTP request body for creating a verification request.
type CreateRequest struct {
	Revealee string `json:"revealee"`
}

// RequestResponse is the HTTP representation of a request.
type RequestResponse struct {
	ID               string `json:"id"`
	Requester        string `json:"requester"`
	Revealee         string `json:"revealee"`
	Payment          string `json:"payment"`
	Expiration       int64  `json:"expiration"`
	State            string `json:"state"`
	IsCanceled       bool   `json:"isCanceled"`
	IsFulfilled      bool   `json:"isFulfilled"`
	IsHumanAndUnique bool   `json:"isHumanAndUnique"`
	IsKYCUser        bool   `json:"isKYCUser"`
	KYCTimestamp     uint64 `json:"kycTimestamp"`
	Status           string `json:"status,omitempty"`
	CreatedAt        int64  `json:"createdAt"`
	CanceledAt       int64  `json:"canceledAt,omitempty"`
	FulfilledAt      int64  `json:"fulfilledAt,omitempty"`
}

// NewRequestResponse converts a domain request to the HTTP shape.
func NewRequestResponse(r *domain.Request) RequestResponse {
	resp := RequestResponse{
		ID:               r.ID.Hex(),
		Requester:        r.Requester.Hex(),
		Revealee:         r.Revealee.Hex(),
		Payment:          r.Payment.String(),
		Expiration:       r.Expiration.Unix(),
		State:            string(r.State()),
		IsCanceled:       r.IsCanceled,
		IsFulfilled:      r.IsFulfilled,
		IsHumanAndUnique: r.IsHumanAndUnique,
		IsKYCUser:        r.IsKYCUser,
		KYCTimestamp:     r.KYCTimestamp,
		CreatedAt:        r.CreatedAt.Unix(),
	}
	if st, ok := r.Outcome(); ok {
		resp.Status = st.String()
	}
	if !r.CanceledAt.IsZero() {
		resp.CanceledAt = r.CanceledAt.Unix()
	}
	if !r.FulfilledAt.IsZero() {
		resp.FulfilledAt = r.FulfilledAt.Unix()
	}
	return resp
}

// ExistsResponse answers an existence query.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// LatestResponse carries the latest request id of a requester.
type LatestResponse struct {
	RequestID string `json:"requestId"`
}

// StatusResponse carries the name of a status ordinal.
type StatusResponse struct {
	Ordinal uint64 `json:"ordinal"`
	Name    string `json:"name"`
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
