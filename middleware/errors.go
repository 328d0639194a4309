package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nebryx/authz"
)

type errorBody struct {
	Errors []string `json:"errors"`
}

// WriteError writes err as {"errors":[code]}. Errors that are not
// [authz.CodeError] values are logged and reported as server.internal_error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ce := authz.Classify(err)
	if ce == authz.ErrInternal {
		slog.Default().ErrorContext(r.Context(), "request failed",
			"module", "middleware",
			"layer", "http",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	WriteJSON(w, ce.Status, errorBody{Errors: []string{ce.Code}})
}

// WriteJSON encodes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
