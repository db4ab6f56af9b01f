// Package transport provides HTTP request/response types for the admin domain.
package transport

import "github.com/pendergraft/revealer/internal/admin/domain"

// SetRequest is the HTTP request body for every admin setter.
type SetRequest struct {
	Value string `json:"value"`
}

// SettingsResponse is the response for getting the admin settings.
type SettingsResponse struct {
	Owner     string `json:"owner"`
	Oracle    string `json:"oracle"`
	Payment   string `json:"payment"`
	Link      string `json:"link"`
	SignUpURL string `json:"signUpURL"`
	JobID     string `json:"jobId"`
	JobIDHex  string `json:"jobIdHex"`
	UpdatedAt int64  `json:"updatedAt"`
}

// NewSettingsResponse converts domain settings to the HTTP shape.
func NewSettingsResponse(s *domain.Settings) SettingsResponse {
	return SettingsResponse{
		Owner:     s.Owner.Hex(),
		Oracle:    s.Oracle.Hex(),
		Payment:   s.Payment.String(),
		Link:      s.Link.Hex(),
		SignUpURL: s.SignUpURL,
		JobID:     s.JobID.String(),
		JobIDHex:  s.JobID.Hex(),
		UpdatedAt: s.UpdatedAt.Unix(),
	}
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
