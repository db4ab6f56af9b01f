// Package ratelimit charges requests to token buckets keyed by who sent them:
// the oracle for signed callbacks, the caller address for authenticated
// requests and the client IP otherwise.
package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/revealer/internal/auth"
	"github.com/pendergraft/revealer/internal/hmacauth"
	"github.com/pendergraft/revealer/internal/middleware/logging"
	"github.com/pendergraft/revealer/internal/observability/metrics"
)

// Scopes label where a limiter sits in the router.
const (
	ScopeIP     = "ip"
	ScopeCaller = "caller"
	ScopeOracle = "oracle"
)

// ErrorWriter writes a JSON error response.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	// CleanupMinutes is how long an idle bucket is kept
	CleanupMinutes int
	// Scope labels rejections in metrics. Defaults to ScopeIP.
	Scope string
	// WriteError renders the 429 response. Defaults to writeJSONError.
	WriteError ErrorWriter
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client key.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	limit      rate.Limit
	burst      int
	idle       time.Duration
	scope      string
	writeError ErrorWriter
	now        func() time.Time
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// New creates a RateLimiter and starts its sweeper.
func New(cfg Config) *RateLimiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	rl := &RateLimiter{
		buckets:    make(map[string]*bucket),
		limit:      rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:      cfg.BurstSize,
		idle:       idle,
		scope:      cfg.Scope,
		writeError: cfg.WriteError,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	if rl.scope == "" {
		rl.scope = ScopeIP
	}
	if rl.writeError == nil {
		rl.writeError = writeJSONError
	}
	go rl.sweepLoop()
	return rl
}

// Stop stops the sweeper. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

// sweep drops buckets idle for longer than the cleanup interval.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.idle)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Take charges one request to key. When the bucket is empty it returns false
// and how long until the next token.
func (rl *RateLimiter) Take(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, rl.idle
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// exemptPaths are never rate limited
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// Middleware rejects requests whose bucket is empty with 429 and a
// Retry-After header in whole seconds.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := ClientKey(r)
			ok, wait := rl.Take(key)
			if !ok {
				metrics.RateLimited(rl.scope)
				logging.AddAttrs(r.Context(), "rate_limited", key)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				rl.writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the client a request is charged to.
func ClientKey(r *http.Request) string {
	if oracle, ok := hmacauth.OracleFromContext(r.Context()); ok {
		return "oracle:" + oracle.Hex()
	}
	if caller, ok := auth.CallerFromContext(r.Context()); ok {
		return "caller:" + caller.Hex()
	}
	return "ip:" + logging.ClientIP(r)
}

// Middleware returns a rate limiting middleware, or a pass-through when
// cfg.Enabled is false. The limiter's sweeper runs for the process lifetime.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return New(cfg).Middleware()
}

func retryAfterSeconds(wait time.Duration) int {
	s := int(math.Ceil(wait.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
