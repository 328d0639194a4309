package middleware

import (
	"net/http"

	"github.com/nebryx/authz"
)

// Authorize runs every request through engine.Authorize. Authorized requests
// reach next with the result in their context and the bearer token in the
// Authorization header of both the request and the response. Bypassed paths
// reach next unchanged.
func Authorize(engine *authz.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, r, authz.ErrEngineNotReady)
				return
			}
			cfg := engine.Config()
			r = WithClient(r, cfg.Network.TrustedClientIPHeader)

			res, err := engine.Authorize(r.Context(), buildRequest(r, cfg))
			if err != nil {
				WriteError(w, r, err)
				return
			}
			if res.Bypassed {
				next.ServeHTTP(w, r)
				return
			}

			r.Header.Set("Authorization", res.Token)
			w.Header().Set("Authorization", res.Token)
			next.ServeHTTP(w, r.WithContext(authz.WithAuthResult(r.Context(), res)))
		})
	}
}

// RequireRole admits requests whose Authorization bearer token belongs to a
// live principal holding one of roles. The principal is attached to the
// request context.
func RequireRole(engine *authz.Engine, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, r, authz.ErrEngineNotReady)
				return
			}
			r = WithClient(r, engine.Config().Network.TrustedClientIPHeader)

			p, err := engine.VerifyBearer(r.Context(), r.Header.Get("Authorization"), roles...)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			res := &authz.AuthResult{Principal: p, Token: r.Header.Get("Authorization")}
			next.ServeHTTP(w, r.WithContext(authz.WithAuthResult(r.Context(), res)))
		})
	}
}
