// Package api is the portal's HTTP surface: a chi router with public intake
// and login routes, staff lead management and the admin alerts feed.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/alerts"
	"github.com/conduit-lang/portal/internal/leads"
	"github.com/conduit-lang/portal/internal/metrics"
	"github.com/conduit-lang/portal/internal/tenant"
	"github.com/conduit-lang/portal/internal/web/auth"
	"github.com/conduit-lang/portal/internal/web/middleware"
	"github.com/conduit-lang/portal/internal/web/profiling"
	"github.com/conduit-lang/portal/internal/web/ratelimit"
	"github.com/conduit-lang/portal/internal/web/request"
	"github.com/conduit-lang/portal/internal/web/response"
)

// LeadService is the lead pipeline as seen by the handlers
type LeadService interface {
	Submit(ctx context.Context, tenantID string, form leads.ContactForm) (*leads.Lead, error)
	List(ctx context.Context, tenantID string, filter leads.Filter) ([]leads.Lead, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*leads.Lead, error)
	UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, to leads.Status, actor string) (*leads.Lead, error)
	Convert(ctx context.Context, tenantID string, id uuid.UUID, input leads.ConvertInput, actor string) (*leads.Conversion, error)
}

// AlertService lists a tenant's alerts
type AlertService interface {
	Overview(ctx context.Context, tenantID string, limit int) (*alerts.Feed, error)
	// Invalidate drops any cached list so the next Overview re-queries
	Invalidate(ctx context.Context, tenantID string) error
}

// Authenticator exchanges credentials for a token
type Authenticator interface {
	Login(ctx context.Context, tenant, email, password string) (string, *auth.User, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Config wires the router
type Config struct {
	Tenants       *tenant.Registry
	Tokens        *auth.Service
	Authenticator Authenticator
	Leads         LeadService
	Alerts        AlertService
	Limits        *ratelimit.Registry
	Metrics       *metrics.Metrics
	Logger        *zap.Logger

	// RateLimitFailClosed rejects requests when the limiter backend errors
	RateLimitFailClosed bool
	// InternalToken lets trusted callers skip rate limits; empty disables it
	InternalToken string
	// TrustedProxies may set X-Forwarded-For; other peers are keyed by socket address
	TrustedProxies middleware.TrustedProxies
	// Health checks run by /healthz, keyed by dependency name
	Health map[string]HealthCheck
	// Profiling mounts pprof for admins when enabled
	Profiling profiling.Config
}

type handlers struct {
	leads  LeadService
	alerts AlertService
	authn  Authenticator
	tokens *auth.Service
	parser *request.Parser
	logger *zap.Logger
	health map[string]HealthCheck
}

// NewRouter builds the HTTP handler
func NewRouter(cfg Config) (http.Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	contactLimit, err := cfg.Limits.Get(ratelimit.PolicyContact.Name)
	if err != nil {
		return nil, err
	}
	authLimit, err := cfg.Limits.Get(ratelimit.PolicyAuth.Name)
	if err != nil {
		return nil, err
	}
	apiLimit, err := cfg.Limits.Get(ratelimit.PolicyAPI.Name)
	if err != nil {
		return nil, err
	}

	h := &handlers{
		leads:  cfg.Leads,
		alerts: cfg.Alerts,
		authn:  cfg.Authenticator,
		tokens: cfg.Tokens,
		parser: request.NewParser(),
		logger: logger.Named("api"),
		health: cfg.Health,
	}

	limit := func(policy string, l ratelimit.Limiter, key middleware.RateLimitKeyFunc) middleware.Middleware {
		return middleware.RateLimit(middleware.RateLimitConfig{
			Policy:     policy,
			Limiter:    l,
			KeyFunc:    key,
			BypassFunc: middleware.InternalBypassFunc(cfg.InternalToken),
			FailOpen:   !cfg.RateLimitFailClosed,
			Logger:     logger,
			Metrics:    cfg.Metrics,
		})
	}

	// authenticated routes check the token before spending the caller's quota
	authed := middleware.NewChain(
		middleware.Auth(cfg.Tokens),
		limit(ratelimit.PolicyAPI.Name, apiLimit, cfg.TrustedProxies.UserKeyFunc),
	)
	staffOnly := authed.Append(middleware.RequireAnyRole(auth.RoleStaff, auth.RoleAdmin))
	adminOnly := authed.Append(middleware.RequireAnyRole(auth.RoleAdmin))

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logging(middleware.LoggingConfig{
			Logger:    logger.Named("http"),
			Metrics:   cfg.Metrics,
			SkipPaths: []string{"/healthz", "/metrics"},
		}),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed, "Method "+r.Method+" is not allowed for this resource", "")
	})

	r.Get("/healthz", h.healthz)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Tenant(cfg.Tenants))

		r.With(limit(ratelimit.PolicyContact.Name, contactLimit, cfg.TrustedProxies.TenantIPKeyFunc)).
			Post("/api/contact", h.submitContact)
		r.With(limit(ratelimit.PolicyAuth.Name, authLimit, cfg.TrustedProxies.TenantIPKeyFunc)).
			Post("/api/auth/login", h.login)

		r.Route("/api/leads", func(r chi.Router) {
			r.Use(staffOnly.Then)
			r.Get("/", h.listLeads)
			r.Get("/{id}", h.getLead)
			r.Patch("/{id}/status", h.updateLeadStatus)
			r.Post("/{id}/convert", h.convertLead)
		})

		r.Group(func(r chi.Router) {
			r.Use(adminOnly.Then)
			r.Get("/api/admin/alerts", h.listAlerts)
			r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
			profiling.Mount(r, cfg.Profiling)
		})
	})

	return r, nil
}

const healthTimeout = 2 * time.Second

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.health))
	status := http.StatusOK
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	response.JSON(w, status, body)
}
