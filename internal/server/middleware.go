package server

import (
	"net/http"
	"strings"

	"github.com/pendergraft/revealer/internal/auth"
	"github.com/pendergraft/revealer/internal/hmacauth"
)

var corsHeaders = strings.Join([]string{
	"Accept",
	"Authorization",
	"Content-Type",
	"X-API-Key",
	auth.CallerHeader,
	hmacauth.HeaderOracle,
	hmacauth.HeaderSignature,
	hmacauth.HeaderTimestamp,
}, ", ")

// cors allows browser clients from any origin. Preflight requests are
// answered directly.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
