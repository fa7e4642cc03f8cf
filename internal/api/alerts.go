package api

import (
	"net/http"

	"github.com/conduit-lang/portal/internal/alerts"
	webcontext "github.com/conduit-lang/portal/internal/web/context"
	"github.com/conduit-lang/portal/internal/web/request"
	"github.com/conduit-lang/portal/internal/web/response"
)

func (h *handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	t := webcontext.GetTenant(r.Context())
	feed, err := h.alerts.Overview(r.Context(), t.Slug, request.GetQueryParamInt(r, "limit", alerts.DefaultLimit))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	response.OK(w, feed)
}
