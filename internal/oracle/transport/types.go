// Package transport provides HTTP request/response types for the oracle gateway.
package transport

import "github.com/pendergraft/revealer/internal/oracle/domain"

// FulfillRequest is the HTTP request body of an oracle callback.
type FulfillRequest struct {
	RequestID    string `json:"requestId"`
	Status       uint64 `json:"status"`
	KYCTimestamp uint64 `json:"kycTimestamp"`
}

// FulfillResponse reports whether the result was recorded.
type FulfillResponse struct {
	Accepted bool `json:"accepted"`
}

// ClaimRequest is the HTTP request body for claiming queued descriptors.
type ClaimRequest struct {
	Max int `json:"max,omitempty"`
}

// ClaimResponse lists claimed descriptors.
type ClaimResponse struct {
	Data []domain.Descriptor `json:"data"`
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
