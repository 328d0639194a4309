package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/nebryx/authz"
)

// Request headers read by Authorize.
const (
	HeaderAPIKey    = "X-Auth-Apikey"
	HeaderNonce     = "X-Auth-Nonce"
	HeaderSignature = "X-Auth-Signature"
	HeaderCSRFToken = "X-CSRF-Token"
)

// ClientIP returns the caller's address. When trustedHeader is set and
// present, its first entry wins over the connection address.
func ClientIP(r *http.Request, trustedHeader string) string {
	if trustedHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(trustedHeader)); v != "" {
			first, _, _ := strings.Cut(v, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithClient returns r with the client address and user-agent attached to
// its context, as Login and the activity log expect.
func WithClient(r *http.Request, trustedHeader string) *http.Request {
	ctx := authz.WithClientIP(r.Context(), ClientIP(r, trustedHeader))
	ctx = authz.WithUserAgent(ctx, r.UserAgent())
	return r.WithContext(ctx)
}

func buildRequest(r *http.Request, cfg authz.Config) *authz.Request {
	req := &authz.Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		UserAgent: r.UserAgent(),
		ClientIP:  ClientIP(r, cfg.Network.TrustedClientIPHeader),
		APIKeyID:  strings.TrimSpace(r.Header.Get(HeaderAPIKey)),
		Nonce:     strings.TrimSpace(r.Header.Get(HeaderNonce)),
		Signature: strings.TrimSpace(r.Header.Get(HeaderSignature)),
		CSRFToken: r.Header.Get(HeaderCSRFToken),
	}
	if uid, sid, ok := readSessionCookie(r, cfg.Session.CookieName); ok {
		req.SessionUID = uid
		req.SessionID = sid
	}
	return req
}
