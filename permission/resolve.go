package permission

import (
	"errors"
	"strings"
)

// ErrDenied is returned when the rules do not allow the request.
var ErrDenied = errors.New("permission: denied")

// Decision is the outcome of a successful resolution.
type Decision struct {
	// Topic is the first matching AUDIT rule's topic; empty when none matched.
	Topic string
	// Audit reports whether an AUDIT rule matched.
	Audit bool
}

// Resolve evaluates rules, which must already be filtered to the principal's
// role, against verb and path. The query string of path is ignored.
func Resolve(rules []Rule, verb, path string) (Decision, error) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	verb = strings.ToUpper(verb)

	var (
		matched  bool
		accepted bool
		decision Decision
	)
	for i := range rules {
		r := &rules[i]
		if r.Verb != verb && r.Verb != VerbAll {
			continue
		}
		if !strings.HasPrefix(path, r.Path) {
			continue
		}
		matched = true
		switch r.Action {
		case ActionDrop:
			return Decision{}, ErrDenied
		case ActionAccept:
			accepted = true
		case ActionAudit:
			if !decision.Audit {
				decision = Decision{Topic: r.Topic, Audit: true}
			}
		}
	}

	if !matched || !accepted {
		return Decision{}, ErrDenied
	}
	return decision, nil
}
