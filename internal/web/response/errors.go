package response

import (
	"net/http"
	"strconv"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// RenderError renders a standard error response. The code is derived from
// the status unless one is given.
func RenderError(w http.ResponseWriter, statusCode int, message string, code string) {
	if code == "" {
		code = errorCodeFromStatus(statusCode)
	}
	JSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: message,
		Code:    code,
	})
}

// RenderValidationError renders field errors with 422
func RenderValidationError(w http.ResponseWriter, fields map[string][]string) {
	JSON(w, http.StatusUnprocessableEntity, &ErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Fields:  fields,
	})
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, message, "")
}

// RenderUnauthorized renders a 401 Unauthorized error
func RenderUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Authentication required"
	}
	RenderError(w, http.StatusUnauthorized, message, "")
}

// RenderForbidden renders a 403 Forbidden error
func RenderForbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Access denied"
	}
	RenderError(w, http.StatusForbidden, message, "")
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, message, "")
}

// RenderConflict renders a 409 Conflict error
func RenderConflict(w http.ResponseWriter, message, code string) {
	RenderError(w, http.StatusConflict, message, code)
}

// RenderTooManyRequests renders a 429 with Retry-After in seconds
func RenderTooManyRequests(w http.ResponseWriter, retryAfter int64) {
	if retryAfter < 0 {
		retryAfter = 0
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	RenderError(w, http.StatusTooManyRequests, "Rate limit exceeded", "")
}

// RenderInternalError renders a 500 without leaking the cause
func RenderInternalError(w http.ResponseWriter) {
	RenderError(w, http.StatusInternalServerError, "Internal server error", "")
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}
