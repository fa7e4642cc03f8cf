package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/metrics"
	webcontext "github.com/conduit-lang/portal/internal/web/context"
)

// LoggingConfig holds configuration for the access log middleware
type LoggingConfig struct {
	Logger *zap.Logger
	// Metrics, when set, also receives per-route counters and latency
	Metrics *metrics.Metrics
	// SkipPaths are not logged (health checks, scrapes)
	SkipPaths []string
}

// Logging writes one structured access log line per request
func Logging(config LoggingConfig) Middleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			route := routePattern(r)
			config.Metrics.ObserveHTTP(r.Method, route, rw.statusCode, duration)

			if _, ok := skip[r.URL.Path]; ok {
				return
			}

			fields := []zap.Field{
				zap.String("request_id", webcontext.GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", duration),
				zap.Int("bytes", rw.bytesWritten),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if t := webcontext.GetTenant(r.Context()); t != nil {
				fields = append(fields, zap.String("tenant", t.Slug))
			}
			if user := webcontext.GetCurrentUser(r.Context()); user != "" {
				fields = append(fields, zap.String("user_id", user))
			}

			switch {
			case rw.statusCode >= 500:
				logger.Error("request", fields...)
			case rw.statusCode >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}

// routePattern returns the chi route pattern so metrics labels stay bounded
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

// Write captures bytes written
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}
