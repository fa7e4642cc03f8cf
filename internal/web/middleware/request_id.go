package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	webcontext "github.com/conduit-lang/portal/internal/web/context"
)

// RequestIDHeader carries the request ID in and out
const RequestIDHeader = "X-Request-ID"

// inbound IDs are echoed only if they look harmless in logs
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID adds a request ID to the context and the response headers.
// A well-formed inbound X-Request-ID is reused.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !requestIDPattern.MatchString(requestID) {
				requestID = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(webcontext.SetRequestID(r.Context(), requestID)))
		})
	}
}
