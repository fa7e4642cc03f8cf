package middleware

import (
	"net/http"

	"github.com/conduit-lang/portal/internal/web/response"
)

// RequireAnyRole lets the request through if the user holds one of roles
func RequireAnyRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRoles := GetUserRoles(r.Context())
			if len(userRoles) == 0 && GetUserID(r.Context()) == "" {
				response.RenderUnauthorized(w, "")
				return
			}

			for _, have := range userRoles {
				for _, want := range roles {
					if have == want {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			response.RenderForbidden(w, "Insufficient role")
		})
	}
}
