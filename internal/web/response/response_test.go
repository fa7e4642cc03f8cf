package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRenderError_DerivesCode(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusNotFound, "not_found"},
		{http.StatusConflict, "conflict"},
		{http.StatusTooManyRequests, "too_many_requests"},
		{http.StatusTeapot, "error"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		RenderError(rec, tt.status, "msg", "")

		assert.Equal(t, tt.status, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, tt.code, decodeError(t, rec).Code)
	}
}

func TestRenderConflict_CustomCode(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderConflict(rec, "lead already converted", "already_converted")

	body := decodeError(t, rec)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_converted", body.Code)
	assert.Equal(t, "lead already converted", body.Message)
}

func TestRenderValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderValidationError(rec, map[string][]string{"email": {"must be a valid email"}})

	body := decodeError(t, rec)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", body.Code)
	assert.Equal(t, []string{"must be a valid email"}, body.Fields["email"])
}

func TestRenderTooManyRequests(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderTooManyRequests(rec, -5)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("Retry-After"))
}

func TestRenderInternalError_HidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderInternalError(rec)

	assert.Equal(t, "Internal server error", decodeError(t, rec).Message)
}
