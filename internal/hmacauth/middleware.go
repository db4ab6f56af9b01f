// Package hmacauth authenticates oracle callbacks signed with a shared secret.
package hmacauth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/middleware/logging"
	"github.com/pendergraft/revealer/internal/validation"
)

// Request headers.
const (
	HeaderOracle    = "X-Oracle-Address"
	HeaderSignature = "X-Request-Signature"
	HeaderTimestamp = "X-Request-Timestamp"
)

var (
	ErrMissingOracle    = errors.New("missing oracle address")
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrNoSecret         = errors.New("oracle callbacks are not configured")
)

type contextKey struct{}

// ErrorWriter writes a JSON error response.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// Verifier checks X-Request-Signature against the shared secret. An empty
// Secret rejects every request unless Insecure is set, in which case the
// oracle address header is trusted as is.
type Verifier struct {
	Secret   string
	Insecure bool
	MaxSkew  time.Duration
	Now      func() time.Time
}

// Middleware verifies the request and stores the oracle address in the
// request context.
func (v *Verifier) Middleware(writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			oracle, err := v.verify(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			logging.AddAttrs(r.Context(), "oracle", oracle.Hex())
			next.ServeHTTP(w, r.WithContext(WithOracle(r.Context(), oracle)))
		})
	}
}

// WithOracle returns a context carrying the authenticated oracle address.
func WithOracle(ctx context.Context, oracle common.Address) context.Context {
	return context.WithValue(ctx, contextKey{}, oracle)
}

// OracleFromContext returns the address set by Middleware.
func OracleFromContext(ctx context.Context) (common.Address, bool) {
	oracle, ok := ctx.Value(contextKey{}).(common.Address)
	return oracle, ok
}

func (v *Verifier) verify(r *http.Request) (common.Address, error) {
	rawOracle := r.Header.Get(HeaderOracle)
	if rawOracle == "" {
		return common.Address{}, ErrMissingOracle
	}
	oracle, err := validation.ParseAddress(rawOracle)
	if err != nil {
		return common.Address{}, err
	}

	if v.Secret == "" {
		if v.Insecure {
			return oracle, nil
		}
		return common.Address{}, ErrNoSecret
	}

	sig := r.Header.Get(HeaderSignature)
	if sig == "" {
		return common.Address{}, ErrMissingSignature
	}
	tsHeader := r.Header.Get(HeaderTimestamp)
	if tsHeader == "" {
		return common.Address{}, ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return common.Address{}, ErrMissingTimestamp
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	reqTime := time.Unix(ts, 0)
	if now.Sub(reqTime) > v.MaxSkew || reqTime.Sub(now) > v.MaxSkew {
		return common.Address{}, ErrStaleTimestamp
	}

	body, err := readBody(r)
	if err != nil {
		return common.Address{}, err
	}

	expected := Sign(v.Secret, tsHeader, oracle, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return common.Address{}, ErrInvalidSignature
	}
	return oracle, nil
}

// Sign computes the hex signature of timestamp, oracle address and body.
// The address is signed in lowercase hex.
func Sign(secret, timestamp string, oracle common.Address, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(strings.ToLower(oracle.Hex())))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
