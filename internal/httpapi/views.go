package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/permission"
)

type userView struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role"`
	Level     int       `json:"level"`
	OTP       bool      `json:"otp"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserView(p *authz.Principal) userView {
	return userView{
		UID:       p.UID,
		Email:     p.Email,
		Username:  p.Username,
		Role:      p.Role,
		Level:     p.Level,
		OTP:       p.OTP,
		State:     p.State,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type sessionView struct {
	userView
	CSRFToken string    `json:"csrf_token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type apiKeyView struct {
	KID       string     `json:"kid"`
	Algorithm string     `json:"algorithm"`
	Scope     []string   `json:"scope"`
	State     string     `json:"state"`
	Secret    string     `json:"secret,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func splitScope(scope string) []string {
	out := []string{}
	for _, s := range strings.Split(scope, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toAPIKeyView(k authz.APIKey) apiKeyView {
	created, updated := k.CreatedAt, k.UpdatedAt
	return apiKeyView{
		KID:       k.KID,
		Algorithm: k.Algorithm,
		Scope:     splitScope(k.Scope),
		State:     k.State,
		CreatedAt: &created,
		UpdatedAt: &updated,
	}
}

type otpView struct {
	Secret  string `json:"secret"`
	URL     string `json:"url"`
	Barcode string `json:"barcode,omitempty"`
}

type ruleView struct {
	ID     int64  `json:"id"`
	Role   string `json:"role"`
	Verb   string `json:"verb"`
	Path   string `json:"path"`
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}

func toRuleView(r permission.Rule) ruleView {
	return ruleView{ID: r.ID, Role: r.Role, Verb: r.Verb, Path: r.Path, Action: r.Action, Topic: r.Topic}
}

// decodeBody reads a single JSON value and rejects unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return authz.ErrInvalidBody
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return authz.ErrInvalidBody
	}
	return nil
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
