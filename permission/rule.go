package permission

import (
	"errors"
	"strings"
)

// Verb values. VerbAll matches every request method.
const (
	VerbGet    = "GET"
	VerbPost   = "POST"
	VerbPut    = "PUT"
	VerbPatch  = "PATCH"
	VerbDelete = "DELETE"
	VerbHead   = "HEAD"
	VerbAll    = "ALL"
)

// Action values.
const (
	ActionAccept = "ACCEPT"
	ActionDrop   = "DROP"
	ActionAudit  = "AUDIT"
)

var (
	ErrInvalidVerb   = errors.New("permission: invalid verb")
	ErrInvalidAction = errors.New("permission: invalid action")
	ErrInvalidRule   = errors.New("permission: role and path are required")
)

var validVerbs = map[string]struct{}{
	VerbGet: {}, VerbPost: {}, VerbPut: {}, VerbPatch: {}, VerbDelete: {}, VerbHead: {}, VerbAll: {},
}

var validActions = map[string]struct{}{
	ActionAccept: {}, ActionDrop: {}, ActionAudit: {},
}

// Rule grants, denies, or audits access for a role to a path prefix.
type Rule struct {
	ID     int64
	Role   string
	Verb   string
	Path   string
	Action string
	Topic  string
}

// Normalize uppercases Verb and Action and trims surrounding space.
func (r *Rule) Normalize() {
	r.Role = strings.TrimSpace(r.Role)
	r.Path = strings.TrimSpace(r.Path)
	r.Verb = strings.ToUpper(strings.TrimSpace(r.Verb))
	r.Action = strings.ToUpper(strings.TrimSpace(r.Action))
	r.Topic = strings.TrimSpace(r.Topic)
}

// Validate normalizes r and checks its fields.
func (r *Rule) Validate() error {
	r.Normalize()
	if r.Role == "" || r.Path == "" {
		return ErrInvalidRule
	}
	if _, ok := validVerbs[r.Verb]; !ok {
		return ErrInvalidVerb
	}
	if _, ok := validActions[r.Action]; !ok {
		return ErrInvalidAction
	}
	return nil
}

// Seeds returns the default rule set installed on a fresh database.
func Seeds(base string) []Rule {
	if base == "" {
		base = "/api/v2/nebryx"
	}
	res := base + "/resource"
	member := []struct{ verb, path, topic string }{
		{VerbGet, "/users/me", "user"},
		{VerbPut, "/users/me", "user"},
		{VerbPut, "/users/password", "password"},
		{VerbGet, "/users/activity", "account"},
		{VerbGet, "/profiles", "profile"},
		{VerbPost, "/profiles", "profile"},
		{VerbGet, "/phones", "phone"},
		{VerbPost, "/phones", "phone"},
		{VerbGet, "/documents", "document"},
		{VerbPost, "/documents", "document"},
		{VerbGet, "/labels", "label"},
		{VerbPost, "/labels", "label"},
		{VerbGet, "/otp", "otp"},
		{VerbPost, "/otp", "otp"},
		{VerbGet, "/api_keys", "apikey"},
		{VerbPost, "/api_keys", "apikey"},
		{VerbDelete, "/api_keys", "apikey"},
		{VerbGet, "/data_storage", "data_storage"},
		{VerbPost, "/data_storage", "data_storage"},
	}

	out := make([]Rule, 0, len(member)+2)
	for _, m := range member {
		out = append(out, Rule{Role: "member", Verb: m.verb, Path: res + m.path, Action: ActionAccept, Topic: m.topic})
	}
	for _, role := range []string{"admin", "superadmin"} {
		out = append(out, Rule{Role: role, Verb: VerbAll, Path: base, Action: ActionAccept, Topic: "admin"})
	}
	return out
}
