// Package auth resolves the calling identity of an HTTP request.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/middleware/logging"
	"github.com/pendergraft/revealer/internal/storage"
	"github.com/pendergraft/revealer/internal/validation"
)

// CallerHeader carries the caller address when API keys are disabled.
const CallerHeader = "X-Caller-Address"

// Context key type for avoiding collisions
type contextKey string

const (
	apiKeyContextKey contextKey = "apiKey"
	callerContextKey contextKey = "caller"
)

// APIKeyValidator is the storage capability the middleware needs.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context, key string) (*storage.APIKey, error)
}

// ErrorWriter writes a JSON error response.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// GetAPIKeyFromContext retrieves the API key info from context.
func GetAPIKeyFromContext(ctx context.Context) *storage.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(*storage.APIKey); ok {
		return key
	}
	return nil
}

// WithCaller returns a context carrying the caller address.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext returns the authenticated caller address.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerContextKey).(common.Address)
	return caller, ok
}

// Middleware returns an HTTP middleware that validates API keys and binds
// the request to the key's address.
func Middleware(store APIKeyValidator, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractKey(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			key, err := store.ValidateAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			caller, err := validation.ParseAddress(key.Address)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is not bound to a valid address")
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			ctx = WithCaller(ctx, caller)
			logging.AddAttrs(ctx, "caller", caller.Hex(), "api_key", key.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderMiddleware trusts the caller address in CallerHeader. It is meant
// for development with AUTH_TYPE=none.
func HeaderMiddleware(writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(CallerHeader))
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", CallerHeader+" header required")
				return
			}
			caller, err := validation.ParseAddress(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
				return
			}
			logging.AddAttrs(r.Context(), "caller", caller.Hex())
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return ""
}
