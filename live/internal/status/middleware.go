package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/domshield/internal/idgen"
)

type contextKey string

// loggerKey holds the per-request logger.
const loggerKey contextKey = "status_logger"

var traceIDs = idgen.Prefixed("req_", idgen.UUIDv7())

// securityHeaders sets the response headers every status response carries.
// The server only emits JSON and metrics, so nothing may be framed or run.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// headToGet lets routes registered with Get answer HEAD.
func headToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// traceID tags each request with an ID, echoed in X-Trace-ID, and stores a
// logger carrying it in the request context.
func traceID(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := traceIDs()
			w.Header().Set("X-Trace-ID", id)
			logger := base.With(
				"trace_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			logger.Debug("status: request")
			ctx := context.WithValue(r.Context(), loggerKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
