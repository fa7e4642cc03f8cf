package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/conduit-lang/portal/internal/web/auth"
	webcontext "github.com/conduit-lang/portal/internal/web/context"
	"github.com/conduit-lang/portal/internal/web/response"
)

// Auth requires a valid Bearer token issued for the request's tenant.
// It must run after Tenant.
func Auth(tokens *auth.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := webcontext.GetTenant(r.Context())
			if t == nil {
				response.RenderInternalError(w)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				response.RenderUnauthorized(w, "Authorization required")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.RenderUnauthorized(w, "Invalid authorization format")
				return
			}

			claims, err := tokens.ValidateToken(token, t.Slug)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, auth.ErrTenantMismatch) {
					msg = "Token not valid for this site"
				}
				response.RenderUnauthorized(w, msg)
				return
			}

			ctx := webcontext.SetCurrentUser(r.Context(), claims.UserID)
			ctx = webcontext.SetUserRoles(ctx, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the user ID from the request context
func GetUserID(ctx context.Context) string {
	return webcontext.GetCurrentUser(ctx)
}

// GetUserRoles extracts the user roles from the request context
func GetUserRoles(ctx context.Context) []string {
	roles := webcontext.GetUserRoles(ctx)
	if roles == nil {
		return []string{}
	}
	return roles
}
