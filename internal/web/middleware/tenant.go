package middleware

import (
	"net/http"

	"github.com/conduit-lang/portal/internal/tenant"
	webcontext "github.com/conduit-lang/portal/internal/web/context"
	"github.com/conduit-lang/portal/internal/web/response"
)

// TenantHeader selects a tenant explicitly, overriding the Host header
const TenantHeader = "X-Tenant"

// Tenant resolves the request's tenant and stores it in the context.
// Unknown tenants get 404 so hosts that are not served stay indistinguishable.
func Tenant(registry *tenant.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				t   *tenant.Tenant
				err error
			)
			if slug := r.Header.Get(TenantHeader); slug != "" {
				t, err = registry.Lookup(slug)
			} else {
				t, err = registry.ResolveHost(r.Host)
			}
			if err != nil {
				response.RenderNotFound(w, "Unknown site")
				return
			}

			next.ServeHTTP(w, r.WithContext(webcontext.SetTenant(r.Context(), t)))
		})
	}
}
