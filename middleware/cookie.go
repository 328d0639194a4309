package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/nebryx/authz"
)

// The cookie value is "<uid>.<session id>". Neither part contains a dot.
const cookieSeparator = "."

// SetSessionCookie writes the session cookie for a successful login.
func SetSessionCookie(w http.ResponseWriter, cfg authz.Config, res *authz.LoginResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    res.Principal.UID + cookieSeparator + res.SessionID,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg authz.Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromCookie returns the uid and session id carried by r.
func SessionFromCookie(r *http.Request, cfg authz.Config) (uid, sid string, ok bool) {
	return readSessionCookie(r, cfg.Session.CookieName)
}

func readSessionCookie(r *http.Request, name string) (string, string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", "", false
	}
	uid, sid, ok := strings.Cut(c.Value, cookieSeparator)
	if !ok || uid == "" || sid == "" {
		return "", "", false
	}
	return uid, sid, true
}
