package authz

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nebryx/authz/apikey"
	"github.com/nebryx/authz/internal"
	"github.com/nebryx/authz/permission"
	"github.com/nebryx/authz/rules"
	"github.com/nebryx/authz/session"
)

// csrfMethods are the verbs that must carry the CSRF header.
var csrfMethods = map[string]struct{}{
	"POST":   {},
	"PUT":    {},
	"PATCH":  {},
	"DELETE": {},
	"TRACE":  {},
}

// Authorize decides whether req may proceed.
//
// Block rules answer ErrPathBlocked and pass rules return a result with
// Bypassed set and no principal. Otherwise the request is authenticated by
// API key when all three key headers are present, or by cookie session, then
// checked against the principal's role rules. On success a fresh bearer token
// is minted for the principal.
//
// Failures are *CodeError values from this package; anything else is an
// infrastructure error the caller should report as 500.
func (e *Engine) Authorize(ctx context.Context, req *Request) (*AuthResult, error) {
	start := time.Now()
	res, err := e.authorize(ctx, req)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	}

	if err != nil {
		e.metricInc(MetricAuthorizeFailure)
		level := slog.LevelWarn
		if Classify(err) == ErrInternal {
			level = slog.LevelError
		}
		e.logger.Log(ctx, level, "authorization rejected",
			"operation", "authorize",
			"outcome", "failure",
			"error_code", Classify(err).Code,
			"error", err,
			"method", req.Method,
			"path", req.Path,
		)
		return nil, err
	}

	e.metricInc(MetricAuthorizeSuccess)
	return res, nil
}

func (e *Engine) authorize(ctx context.Context, req *Request) (*AuthResult, error) {
	if req == nil {
		return nil, ErrInvalidSession
	}

	if e.rules != nil {
		switch e.rules.Decide(req.Path) {
		case rules.Block:
			e.metricInc(MetricPathBlocked)
			return nil, ErrPathBlocked
		case rules.Pass:
			e.metricInc(MetricPathBypassed)
			return &AuthResult{Bypassed: true}, nil
		}
	}

	var (
		res *AuthResult
		err error
	)
	if req.HasAPIKeyHeaders() {
		res, err = e.apiKeyOwner(ctx, req)
	} else {
		res, err = e.cookieOwner(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	token, err := e.issueToken(res.Principal)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	res.Token = token
	return res, nil
}

func (e *Engine) cookieOwner(ctx context.Context, req *Request) (*AuthResult, error) {
	var rec *session.Record
	if req.SessionUID != "" && req.SessionID != "" {
		r, err := e.sessions.Get(ctx, req.SessionUID, req.SessionID)
		switch {
		case err == nil:
			rec = r
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrCorruptRecord):
		default:
			return nil, err
		}
	}

	if err := e.checkCSRF(req, rec); err != nil {
		e.metricInc(MetricCSRFRejected)
		return nil, err
	}

	if rec == nil || rec.UID == "" {
		return nil, ErrInvalidSession
	}
	p, err := e.lookupPrincipal(ctx, rec.UID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	now := e.now()
	if req.UserAgent != rec.UserAgent ||
		rec.Expired(now) ||
		internal.MaskIP(req.ClientIP) != rec.IPRange {
		e.metricInc(MetricSessionMismatch)
		return nil, ErrClientSessionMismatch
	}

	if !p.Live() {
		return nil, ErrUserNotActive
	}

	if err := e.sessions.Slide(ctx, rec, now, e.config.Session.Lifetime); err != nil {
		return nil, err
	}

	decision, err := e.resolve(ctx, p, req)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionAuth)
	return &AuthResult{
		Principal: p,
		Topic:     decision.Topic,
		Audit:     decision.Audit,
		Method:    MethodSession,
		SessionID: rec.SessionID,
	}, nil
}

func (e *Engine) checkCSRF(req *Request, rec *session.Record) error {
	if !e.config.Session.CSRFProtection {
		return nil
	}
	if _, ok := csrfMethods[strings.ToUpper(req.Method)]; !ok {
		return nil
	}
	if req.CSRFToken == "" {
		return ErrMissingCSRFToken
	}
	if rec == nil || subtle.ConstantTimeCompare([]byte(req.CSRFToken), []byte(rec.CSRFToken)) != 1 {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (e *Engine) apiKeyOwner(ctx context.Context, req *Request) (*AuthResult, error) {
	if _, err := e.verifier.CheckNonce(req.Nonce); err != nil {
		e.metricInc(MetricNonceRejected)
		if errors.Is(err, apikey.ErrNonceExpired) {
			return nil, ErrNonceExpired
		}
		return nil, ErrNonceNotValidTimestamp
	}

	key, err := e.keys.APIKeyByKID(ctx, req.APIKeyID)
	if err != nil && !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}
	if !key.Active() {
		return nil, ErrAPIKeyNotActive
	}

	if err := e.verifier.Verify(key.Secret, req.Method, req.Path, req.Nonce, req.Signature); err != nil {
		e.metricInc(MetricSignatureRejected)
		return nil, ErrInvalidSignature
	}

	p, err := e.directory.PrincipalByID(ctx, key.OwnerID)
	if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}
	if p == nil {
		return nil, ErrUnexistentAPIKey
	}
	if !p.Live() {
		return nil, ErrInvalidSession
	}
	if e.config.APIKey.RequireOTP && !p.OTP {
		return nil, ErrDisabled2FA
	}

	decision, err := e.resolve(ctx, p, req)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricAPIKeyAuth)
	return &AuthResult{
		Principal: p,
		Topic:     decision.Topic,
		Audit:     decision.Audit,
		Method:    MethodAPIKey,
		KID:       key.KID,
	}, nil
}

func (e *Engine) resolve(ctx context.Context, p *Principal, req *Request) (permission.Decision, error) {
	decision, err := e.permissions.Resolve(ctx, p.Role, req.Method, req.Path)
	if err != nil {
		if errors.Is(err, permission.ErrDenied) {
			e.metricInc(MetricPermissionDenied)
			return permission.Decision{}, ErrInvalidPermission
		}
		return permission.Decision{}, err
	}
	return decision, nil
}
