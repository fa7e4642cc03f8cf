package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/leads"
	webcontext "github.com/conduit-lang/portal/internal/web/context"
	"github.com/conduit-lang/portal/internal/web/middleware"
	"github.com/conduit-lang/portal/internal/web/request"
	"github.com/conduit-lang/portal/internal/web/response"
)

type statusRequest struct {
	Status string `json:"status"`
}

type listLeadsResponse struct {
	Leads  []leads.Lead `json:"leads"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// submitContact handles the public intake form, JSON or urlencoded
func (h *handlers) submitContact(w http.ResponseWriter, r *http.Request) {
	var form leads.ContactForm
	if err := h.parser.Parse(w, r, &form); err != nil {
		renderBindError(w, err)
		return
	}

	t := webcontext.GetTenant(r.Context())
	lead, err := h.leads.Submit(r.Context(), t.Slug, form)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	response.Created(w, map[string]string{"id": lead.ID.String()})
}

func (h *handlers) listLeads(w http.ResponseWriter, r *http.Request) {
	filter := leads.Filter{
		Status: leads.Status(request.GetQueryParam(r, "status")),
		Limit:  request.GetQueryParamInt(r, "limit", 0),
		Offset: request.GetQueryParamInt(r, "offset", 0),
	}

	t := webcontext.GetTenant(r.Context())
	list, err := h.leads.List(r.Context(), t.Slug, filter)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	filter = filter.Normalized()
	response.OK(w, listLeadsResponse{Leads: list, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *handlers) getLead(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	t := webcontext.GetTenant(r.Context())
	lead, err := h.leads.Get(r.Context(), t.Slug, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	response.OK(w, lead)
}

func (h *handlers) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	var body statusRequest
	if err := h.parser.ParseJSON(w, r, &body); err != nil {
		renderBindError(w, err)
		return
	}
	to, err := leads.ParseStatus(body.Status)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	t := webcontext.GetTenant(r.Context())
	lead, err := h.leads.UpdateStatus(r.Context(), t.Slug, id, to, middleware.GetUserID(r.Context()))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.invalidateAlerts(r, t.Slug)
	response.OK(w, lead)
}

func (h *handlers) convertLead(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	// an empty body converts with defaults, however it was framed
	var input leads.ConvertInput
	if err := h.parser.ParseJSON(w, r, &input); err != nil && !errors.Is(err, request.ErrEmptyBody) {
		renderBindError(w, err)
		return
	}

	t := webcontext.GetTenant(r.Context())
	conv, err := h.leads.Convert(r.Context(), t.Slug, id, input, middleware.GetUserID(r.Context()))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.invalidateAlerts(r, t.Slug)
	response.OK(w, conv)
}

// invalidateAlerts drops the cached alert list after a lead changes state.
// A failure only delays the refresh until the cache TTL passes.
func (h *handlers) invalidateAlerts(r *http.Request, tenantID string) {
	if err := h.alerts.Invalidate(r.Context(), tenantID); err != nil {
		h.logger.Warn("failed to invalidate alerts cache", zap.String("tenant", tenantID), zap.Error(err))
	}
}

// leadID parses the {id} path parameter, rendering 400 when it is not a UUID
func leadID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := request.GetParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		response.RenderBadRequest(w, fmt.Sprintf("invalid lead id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}
