package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotfinder/libs/runtime"
)

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusCapturingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusCapturingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// DebugQueryParam turns on debug logging for a single request (?debug=1).
const DebugQueryParam = "debug"

// WithRequestLogger stores a request-scoped logger in the context. Verbosity is decided
// per request: base handles the configured level, and ?debug=1 swaps in debugBase for
// this request only. debugBase may be nil to disable the override.
func WithRequestLogger(base, debugBase *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base
			if debugBase != nil && isTruthy(r.URL.Query().Get(DebugQueryParam)) {
				logger = debugBase
			}
			logger = logger.With(
				"request_id", RequestIDFromContext(r.Context()),
				"path", r.URL.Path,
			)
			next.ServeHTTP(w, r.WithContext(runtime.WithLogger(r.Context(), logger)))
		})
	}
}

func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCapturingResponseWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			logger.LogAttrs(context.Background(), slog.LevelInfo, "http request",
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Int64("bytes", sw.bytes),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
