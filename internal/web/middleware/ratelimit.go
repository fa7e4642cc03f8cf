package middleware

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/metrics"
	"github.com/conduit-lang/portal/internal/web/ratelimit"
	"github.com/conduit-lang/portal/internal/web/response"
)

// RateLimitConfig holds configuration for rate limiting middleware
type RateLimitConfig struct {
	// Policy names the limit for logs and metrics
	Policy string
	// Limiter is the rate limiter implementation to use
	Limiter ratelimit.Limiter
	// KeyFunc extracts the rate limit key from the request
	KeyFunc RateLimitKeyFunc
	// BypassFunc determines if rate limiting should be skipped for a request
	BypassFunc RateLimitBypassFunc
	// FailOpen allows the request when the limiter errors; otherwise 500
	FailOpen bool
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Now overrides time.Now for Retry-After
	Now func() time.Time
}

// RateLimitKeyFunc extracts a rate limit key from a request
type RateLimitKeyFunc func(*http.Request) string

// RateLimitBypassFunc determines if rate limiting should be bypassed
type RateLimitBypassFunc func(*http.Request) bool

// RateLimit creates a rate limiting middleware
func RateLimit(config RateLimitConfig) Middleware {
	if config.KeyFunc == nil {
		config.KeyFunc = TenantIPKeyFunc
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.BypassFunc != nil && config.BypassFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := config.KeyFunc(r)
			if key == "" {
				if config.FailOpen {
					next.ServeHTTP(w, r)
				} else {
					response.RenderInternalError(w)
				}
				return
			}

			info, err := config.Limiter.Allow(r.Context(), key)
			if err != nil {
				config.Metrics.RateLimitDecision(config.Policy, "error")
				config.Logger.Warn("rate limiter unavailable",
					zap.String("policy", config.Policy),
					zap.Bool("fail_open", config.FailOpen),
					zap.Error(err),
				)
				if config.FailOpen {
					next.ServeHTTP(w, r)
				} else {
					response.RenderInternalError(w)
				}
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				config.Metrics.RateLimitDecision(config.Policy, "denied")
				config.Logger.Info("rate limit exceeded",
					zap.String("policy", config.Policy),
					zap.String("key", key),
				)
				retryAfter := info.ResetAt.Sub(config.Now())
				response.RenderTooManyRequests(w, int64((retryAfter+time.Second-1)/time.Second))
				return
			}

			config.Metrics.RateLimitDecision(config.Policy, "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc returns the socket peer address. Forwarding headers are
// ignored; use TrustedProxies.ClientIP behind a load balancer.
func IPKeyFunc(r *http.Request) string {
	return TrustedProxies(nil).ClientIP(r)
}

// TenantIPKeyFunc scopes the peer address to the request's tenant
func TenantIPKeyFunc(r *http.Request) string {
	return TrustedProxies(nil).TenantIPKeyFunc(r)
}

// UserKeyFunc keys authenticated traffic by user, falling back to the peer
// address
func UserKeyFunc(r *http.Request) string {
	return TrustedProxies(nil).UserKeyFunc(r)
}

// InternalBypassFunc bypasses rate limiting for requests carrying the
// shared internal token
func InternalBypassFunc(token string) RateLimitBypassFunc {
	return func(r *http.Request) bool {
		return token != "" && r.Header.Get("X-Internal-Token") == token
	}
}
