// Package httpapi serves the identity, resource and admin routes of the
// daemon on top of the engine and its HTTP middleware.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nebryx/authz"
	"github.com/nebryx/authz/middleware"
)

// Handler binds the HTTP routes to an engine.
type Handler struct {
	engine *authz.Engine
	logger *slog.Logger
}

// NewHandler constructs a Handler. A nil logger falls back to slog.Default.
func NewHandler(engine *authz.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger.With("module", "httpapi", "layer", "http")}
}

// NewRouter registers the routes under the configured permission base path.
// metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", h.healthz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	base := h.engine.Config().Permission.BasePath
	r.Route(base, func(r chi.Router) {
		r.Route("/identity", func(r chi.Router) {
			r.Post("/users", h.register)
			r.Post("/sessions", h.login)
			r.Delete("/sessions", h.logout)
		})

		r.Route("/resource", func(r chi.Router) {
			r.Use(middleware.Authorize(h.engine))

			r.Get("/users/me", h.me)
			r.Put("/users/password", h.changePassword)

			r.Post("/otp/generate_qrcode", h.generateOTP)
			r.Post("/otp/enable", h.enableOTP)
			r.Post("/otp/disable", h.disableOTP)

			r.Get("/api_keys", h.listAPIKeys)
			r.Post("/api_keys", h.createAPIKey)
			r.Delete("/api_keys/{kid}", h.deleteAPIKey)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Authorize(h.engine))
			r.Use(middleware.RequireRole(h.engine, authz.RoleAdmin, authz.RoleSuperAdmin))

			r.Get("/permissions", h.listPermissions)
			r.Post("/permissions", h.createPermission)
			r.Put("/permissions/{id}", h.updatePermission)
			r.Delete("/permissions/{id}", h.deletePermission)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "operation", "healthz", "outcome", "failure", "error", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
