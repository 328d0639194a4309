package httpapi

import (
	"net/http"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/middleware"
)

type registerBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	RefID    string `json:"refid"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decodeBody(r, &body); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	r = middleware.WithClient(r, h.engine.Config().Network.TrustedClientIPHeader)

	p, err := h.engine.Register(r.Context(), authz.RegisterInput{
		Email:       body.Email,
		Password:    body.Password,
		Username:    body.Username,
		ReferralUID: body.RefID,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toUserView(p))
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTPCode  string `json:"otp_code"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeBody(r, &body); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	cfg := h.engine.Config()
	r = middleware.WithClient(r, cfg.Network.TrustedClientIPHeader)

	res, err := h.engine.Login(r.Context(), authz.LoginInput{
		Email:    body.Email,
		Password: body.Password,
		OTPCode:  body.OTPCode,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.SetSessionCookie(w, cfg, res)
	middleware.WriteJSON(w, http.StatusOK, sessionView{
		userView:  toUserView(res.Principal),
		CSRFToken: res.CSRFToken,
		ExpiresAt: res.ExpiresAt,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.Config()
	r = middleware.WithClient(r, cfg.Network.TrustedClientIPHeader)

	uid, sid, _ := middleware.SessionFromCookie(r, cfg)
	if err := h.engine.Logout(r.Context(), uid, sid); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.ClearSessionCookie(w, cfg)
	w.WriteHeader(http.StatusOK)
}
