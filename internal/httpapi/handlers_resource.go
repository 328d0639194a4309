package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nebryx/authz"
	"github.com/nebryx/authz/middleware"
)

// principal returns the caller attached by the Authorize middleware.
func principal(w http.ResponseWriter, r *http.Request) (*authz.Principal, bool) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, authz.ErrInvalidSession)
		return nil, false
	}
	return p, true
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toUserView(p))
}

type changePasswordBody struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var body changePasswordBody
	if err := decodeBody(r, &body); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if body.ConfirmPassword != "" && body.ConfirmPassword != body.NewPassword {
		middleware.WriteError(w, r, authz.ErrWeakPassword)
		return
	}
	if err := h.engine.ChangePassword(r.Context(), p.UID, body.OldPassword, body.NewPassword); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.ClearSessionCookie(w, h.engine.Config())
	w.WriteHeader(http.StatusCreated)
}

type otpCodeBody struct {
	Code string `json:"code"`
}

func (h *Handler) generateOTP(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	enrollment, err := h.engine.GenerateTOTP(r.Context(), p)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, otpView{
		Secret:  enrollment.Secret,
		URL:     enrollment.OTPAuthURL,
		Barcode: enrollment.QRCodeURL,
	})
}

func (h *Handler) enableOTP(w http.ResponseWriter, r *http.Request) {
	h.otpToggle(w, r, h.engine.EnableTOTP)
}

func (h *Handler) disableOTP(w http.ResponseWriter, r *http.Request) {
	h.otpToggle(w, r, h.engine.DisableTOTP)
}

func (h *Handler) otpToggle(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, p *authz.Principal, code string) error) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var body otpCodeBody
	if err := decodeBody(r, &body); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := apply(r.Context(), p, body.Code); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	keys, err := h.engine.ListAPIKeys(r.Context(), p)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	out := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAPIKeyView(k))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

type createAPIKeyBody struct {
	Algorithm string `json:"algorithm"`
	Scope     string `json:"scope"`
}

func (h *Handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var body createAPIKeyBody
	if err := decodeBody(r, &body); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	created, err := h.engine.CreateAPIKey(r.Context(), p, body.Algorithm, body.Scope)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, apiKeyView{
		KID:       created.KID,
		Algorithm: created.Algorithm,
		Scope:     splitScope(created.Scope),
		State:     created.State,
		Secret:    created.Secret,
	})
}

func (h *Handler) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeactivateAPIKey(r.Context(), p, chi.URLParam(r, "kid")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
