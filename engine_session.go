package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nebryx/authz/internal"
	"github.com/nebryx/authz/internal/rate"
	"github.com/nebryx/authz/session"
	"github.com/nebryx/authz/totp"
)

const (
	topicSession  = "session"
	topicPassword = "password"
	topicUser     = "user"

	actionLogin    = "login"
	actionLogin2FA = "login::2fa"
	actionLogout   = "logout"
)

// Login checks credentials and opens a cookie session bound to the client's
// user-agent and masked address taken from ctx.
//
// Principals with two-factor enabled must supply a valid OTPCode. Failed
// attempts count against the login limiter; a success resets the per-account
// counter and, when configured, rehashes a legacy digest.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	pass := strings.TrimSpace(in.Password)
	if email == "" {
		return nil, ErrMissingEmail
	}
	if pass == "" {
		return nil, ErrMissingPassword
	}

	ip := clientIPFromContext(ctx)
	if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
		return nil, e.loginLimitError(err)
	}

	p, err := e.directory.PrincipalByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}
	if p == nil {
		return nil, e.loginFailure(ctx, nil, email, ErrInvalidParams)
	}

	switch {
	case p.State == StateBanned:
		return nil, e.loginFailure(ctx, p, email, ErrBanned)
	case p.State == StateDeleted:
		return nil, e.loginFailure(ctx, p, email, ErrDeleted)
	case !p.Live():
		return nil, e.loginFailure(ctx, p, email, ErrNotActive)
	}

	if p.PasswordDigest == "" {
		return nil, e.loginFailure(ctx, p, email, ErrInvalidParams)
	}
	ok, err := e.passwords.Verify(pass, p.PasswordDigest)
	if err != nil || !ok {
		return nil, e.loginFailure(ctx, p, email, ErrInvalidParams)
	}

	action := actionLogin
	if p.OTP {
		action = actionLogin2FA
		if err := e.checkLoginOTP(ctx, p, in.OTPCode); err != nil {
			return nil, err
		}
	}

	e.upgradeDigest(ctx, p, pass)
	pass = ""

	if err := e.rateLimiter.ResetLogin(ctx, email); err != nil {
		e.logger.Warn("login limiter reset failed", "operation", "login", "uid", p.UID, "error", err)
	}

	res, err := e.openSession(ctx, p)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitActivity(ctx, activity{principal: p, topic: topicSession, action: action, result: ResultSucceed})
	e.logger.Info("login succeeded", "operation", "login", "outcome", "success", "uid", p.UID)
	return res, nil
}

func (e *Engine) checkLoginOTP(ctx context.Context, p *Principal, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		e.metricInc(MetricLoginFailure)
		return ErrMissingOTP
	}
	if err := e.totpLimiter.Check(ctx, p.UID); err != nil {
		return e.totpLimitError(err)
	}

	valid, err := e.totp.Validate(ctx, p.UID, code)
	if err != nil {
		return err
	}
	if !valid {
		e.metricInc(MetricLoginFailure)
		e.metricInc(MetricTOTPFailure)
		e.emitActivity(ctx, activity{principal: p, topic: topicSession, action: actionLogin2FA, result: ResultFailed})
		if err := e.totpLimiter.RecordFailure(ctx, p.UID); err != nil {
			return e.totpLimitError(err)
		}
		return ErrInvalidOTP
	}

	e.metricInc(MetricTOTPSuccess)
	_ = e.totpLimiter.Reset(ctx, p.UID)
	return nil
}

func (e *Engine) upgradeDigest(ctx context.Context, p *Principal, pass string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	upgrade, err := e.passwords.NeedsUpgrade(p.PasswordDigest)
	if err != nil || !upgrade {
		return
	}
	digest, err := e.passwords.Hash(pass)
	if err != nil {
		e.logger.Warn("password digest upgrade failed", "operation", "login", "uid", p.UID, "error", err)
		return
	}
	// Best-effort; the login has already succeeded.
	if err := e.directory.UpdatePasswordDigest(ctx, p.ID, digest); err != nil {
		e.logger.Warn("password digest upgrade failed", "operation", "login", "uid", p.UID, "error", err)
		return
	}
	p.PasswordDigest = digest
	e.metricInc(MetricPasswordUpgraded)
}

func (e *Engine) openSession(ctx context.Context, p *Principal) (*LoginResult, error) {
	csrf, err := internal.NewCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("csrf token: %w", err)
	}

	now := e.now()
	lifetime := e.config.Session.Lifetime
	rec := &session.Record{
		SessionID: internal.NewSessionID(),
		UID:       p.UID,
		UserAgent: userAgentFromContext(ctx),
		IPRange:   internal.MaskIP(clientIPFromContext(ctx)),
		CSRFToken: csrf,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(lifetime).UnixMilli(),
	}
	if err := e.sessions.Save(ctx, rec, lifetime); err != nil {
		return nil, err
	}

	return &LoginResult{
		Principal: p,
		SessionID: rec.SessionID,
		CSRFToken: csrf,
		ExpiresAt: rec.Expiry(),
	}, nil
}

func (e *Engine) loginFailure(ctx context.Context, p *Principal, email string, code *CodeError) error {
	e.metricInc(MetricLoginFailure)
	if p != nil {
		e.emitActivity(ctx, activity{principal: p, topic: topicSession, action: actionLogin, result: ResultFailed})
	}
	e.logger.Warn("login rejected",
		"operation", "login",
		"outcome", "failure",
		"error_code", code.Code,
	)
	if err := e.rateLimiter.IncrementLogin(ctx, email, clientIPFromContext(ctx)); err != nil {
		return e.loginLimitError(err)
	}
	return code
}

func (e *Engine) loginLimitError(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricLoginRateLimited)
		return ErrLoginRateLimited
	}
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

func (e *Engine) totpLimitError(err error) error {
	if errors.Is(err, totp.ErrRateLimited) {
		e.metricInc(MetricTOTPRateLimited)
		return ErrOTPRateLimited
	}
	return err
}

// Logout deletes one session. A missing principal is reported as
// ErrSessionNotFound; deleting an already expired record is not an error.
func (e *Engine) Logout(ctx context.Context, uid, sessionID string) error {
	if uid == "" || sessionID == "" {
		return ErrSessionNotFound
	}
	p, err := e.lookupPrincipal(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	if err := e.sessions.Delete(ctx, uid, sessionID); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.emitActivity(ctx, activity{principal: p, topic: topicSession, action: actionLogout, result: ResultSucceed})
	return nil
}

// InvalidateSessions deletes every session of uid and returns how many were
// removed. It is a scan followed by deletes, so a session opened concurrently
// may survive.
func (e *Engine) InvalidateSessions(ctx context.Context, uid string) (int, error) {
	n, err := e.sessions.DeleteAllForUser(ctx, uid)
	if err != nil {
		return n, err
	}
	e.metricInc(MetricSessionInvalidated)
	e.logger.Info("sessions invalidated", "operation", "invalidate_sessions", "uid", uid, "count", n)
	return n, nil
}

// ChangePassword replaces the principal's digest after checking the current
// password, then invalidates every session of the principal.
func (e *Engine) ChangePassword(ctx context.Context, uid, current, next string) error {
	p, err := e.lookupPrincipal(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return ErrInvalidSession
		}
		return err
	}

	ok, err := e.passwords.Verify(current, p.PasswordDigest)
	if err != nil || !ok {
		e.emitActivity(ctx, activity{principal: p, topic: topicPassword, action: "password::change", result: ResultFailed})
		return ErrCurrentPassword
	}

	digest, err := e.passwords.Hash(next)
	if err != nil {
		return ErrWeakPassword
	}
	if err := e.directory.UpdatePasswordDigest(ctx, p.ID, digest); err != nil {
		return err
	}

	if _, err := e.InvalidateSessions(ctx, p.UID); err != nil {
		return fmt.Errorf("invalidate sessions after password change: %w", err)
	}

	e.metricInc(MetricPasswordChanged)
	e.emitActivity(ctx, activity{principal: p, topic: topicPassword, action: "password::change", result: ResultSucceed})
	return nil
}

// Register creates a pending member account. The directory assigns the uid.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*Principal, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))

	digest, err := e.passwords.Hash(in.Password)
	if err != nil {
		return nil, ErrWeakPassword
	}

	var referralID *int64
	if ref := strings.TrimSpace(in.ReferralUID); ref != "" {
		if !strings.HasPrefix(ref, strings.ToUpper(e.config.Identifier.UserPrefix)) {
			return nil, ErrReferralFormat
		}
		referrer, err := e.lookupPrincipal(ctx, ref)
		if err != nil {
			if errors.Is(err, ErrPrincipalNotFound) {
				return nil, ErrReferralNotFound
			}
			return nil, err
		}
		referralID = &referrer.ID
	}

	p, err := e.directory.CreatePrincipal(ctx, NewPrincipal{
		Email:          email,
		Username:       username,
		PasswordDigest: digest,
		Role:           RoleMember,
		State:          StatePending,
		ReferralID:     referralID,
	})
	if err != nil {
		if errors.Is(err, ErrPrincipalExists) {
			return nil, ErrEmailExists
		}
		return nil, err
	}

	e.metricInc(MetricRegistration)
	e.emitActivity(ctx, activity{principal: p, topic: topicUser, action: "create", result: ResultSucceed})
	return p, nil
}
