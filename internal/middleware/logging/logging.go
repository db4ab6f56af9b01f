// Package logging provides structured HTTP request logging middleware.
package logging

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// responseWriter wraps http.ResponseWriter to capture status and bytes
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for middleware that need it
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type attrsKey struct{}

// attrs collects attributes added by handlers further down the chain.
type attrs struct {
	mu   sync.Mutex
	list []any
}

// AddAttrs attaches key/value pairs to the access log line of the current
// request. It is a no-op outside of Middleware.
func AddAttrs(ctx context.Context, args ...any) {
	a, ok := ctx.Value(attrsKey{}).(*attrs)
	if !ok {
		return
	}
	a.mu.Lock()
	a.list = append(a.list, args...)
	a.mu.Unlock()
}

// Middleware returns an HTTP middleware that logs requests using structured logging.
// Each line carries the chi request id, method, path, status, bytes, duration
// and client IP, plus whatever AddAttrs recorded (the authenticated caller or
// oracle, for example). Run chi's RealIP first when behind a trusted proxy.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}
			extra := &attrs{}
			r = r.WithContext(context.WithValue(r.Context(), attrsKey{}, extra))

			defer func() {
				args := []any{
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.status,
					"bytes", wrapped.bytes,
					"duration", time.Since(start).String(),
					"client_ip", ClientIP(r),
				}
				extra.mu.Lock()
				args = append(args, extra.list...)
				extra.mu.Unlock()

				logger.Info("request", args...)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// ClientIP strips the port from r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
