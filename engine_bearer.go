package authz

import (
	"context"
	"errors"
	"strings"
)

// VerifyBearer authenticates an "Authorization: Bearer" header value minted
// by Authorize and re-reads the principal so revoked or disabled accounts stop
// working before the token expires. When roles is non-empty the principal's
// role must be one of them.
func (e *Engine) VerifyBearer(ctx context.Context, header string, roles ...string) (*Principal, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrInvalidSession
	}

	claims, err := e.tokens.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrInvalidSession
	}

	p, err := e.lookupPrincipal(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if !p.Live() {
		return nil, ErrUserNotActive
	}

	if len(roles) > 0 && !hasRole(p.Role, roles) {
		e.logger.Warn("role rejected",
			"operation", "verify_bearer",
			"outcome", "failure",
			"uid", p.UID,
			"role", p.Role,
		)
		return nil, ErrForbiddenRole
	}
	return p, nil
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
