package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nebryx/authz"
	"github.com/nebryx/authz/middleware"
	"github.com/nebryx/authz/permission"
)

type permissionBody struct {
	Role   string `json:"role"`
	Verb   string `json:"verb"`
	Path   string `json:"path"`
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type permissionPatchBody struct {
	Role   *string `json:"role"`
	Verb   *string `json:"verb"`
	Path   *string `json:"path"`
	Action *string `json:"action"`
	Topic  *string `json:"topic"`
}

// listPermissions pages through the rule table. Paging metadata travels in
// the Total, Page and Per-Page headers.
func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.engine.ListPermissions(r.Context(), parseIntDefault(q.Get("page"), 1), parseIntDefault(q.Get("limit"), 0))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	out := make([]ruleView, 0, len(page.Rules))
	for _, rule := range page.Rules {
		out = append(out, toRuleView(rule))
	}
	w.Header().Set("Total", strconv.FormatInt(page.Total, 10))
	w.Header().Set("Page", strconv.Itoa(page.Page))
	w.Header().Set("Per-Page", strconv.Itoa(page.Limit))
	middleware.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var body permissionBody
	if err := decodeBody(r, &body); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	rule, err := h.engine.CreatePermission(r.Context(), actor, permission.Rule{
		Role:   body.Role,
		Verb:   body.Verb,
		Path:   body.Path,
		Action: body.Action,
		Topic:  body.Topic,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toRuleView(*rule))
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var body permissionPatchBody
	if err := decodeBody(r, &body); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	rule, err := h.engine.UpdatePermission(r.Context(), actor, id, authz.RulePatch{
		Role:   body.Role,
		Verb:   body.Verb,
		Path:   body.Path,
		Action: body.Action,
		Topic:  body.Topic,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toRuleView(*rule))
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeletePermission(r.Context(), actor, id); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, r, authz.ErrPermissionNotFound)
		return 0, false
	}
	return id, true
}
