package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/leads"
	"github.com/conduit-lang/portal/internal/validate"
	webcontext "github.com/conduit-lang/portal/internal/web/context"
	"github.com/conduit-lang/portal/internal/web/request"
	"github.com/conduit-lang/portal/internal/web/response"
)

// renderError maps service errors onto HTTP responses. Anything unrecognised
// is logged and rendered as an opaque 500.
func (h *handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		response.RenderValidationError(w, verr.Fields)
	case errors.Is(err, leads.ErrNotFound):
		response.RenderNotFound(w, "Lead not found")
	case errors.Is(err, leads.ErrInvalidTransition):
		response.RenderConflict(w, err.Error(), "invalid_transition")
	case errors.Is(err, leads.ErrAlreadyConverted):
		response.RenderConflict(w, err.Error(), "already_converted")
	case errors.Is(err, leads.ErrNotQualified):
		response.RenderConflict(w, err.Error(), "not_qualified")
	case errors.Is(err, leads.ErrInvalidStatus):
		response.RenderValidationError(w, map[string][]string{"status": {"must be one of: new, contacted, qualified, converted, lost"}})
	default:
		h.logger.Error("request failed",
			zap.String("request_id", webcontext.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		response.RenderInternalError(w)
	}
}

// renderBindError reports a body that could not be decoded
func renderBindError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.RenderError(w, http.StatusRequestEntityTooLarge, err.Error(), "")
		return
	}
	if errors.Is(err, request.ErrUnsupportedMediaType) {
		response.RenderError(w, http.StatusUnsupportedMediaType, err.Error(), "")
		return
	}
	response.RenderBadRequest(w, err.Error())
}
