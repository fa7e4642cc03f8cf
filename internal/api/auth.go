package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/conduit-lang/portal/internal/validate"
	"github.com/conduit-lang/portal/internal/web/auth"
	webcontext "github.com/conduit-lang/portal/internal/web/context"
	"github.com/conduit-lang/portal/internal/web/response"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresIn int64      `json:"expires_in"`
	User      *auth.User `json:"user"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := h.parser.Parse(w, r, &body); err != nil {
		renderBindError(w, err)
		return
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if err := validate.Struct(body); err != nil {
		h.renderError(w, r, err)
		return
	}

	t := webcontext.GetTenant(r.Context())
	token, user, err := h.authn.Login(r.Context(), t.Slug, body.Email, body.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		response.RenderUnauthorized(w, "Invalid email or password")
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	response.OK(w, loginResponse{
		Token:     token,
		ExpiresIn: int64(h.tokens.TTL().Seconds()),
		User:      user,
	})
}
