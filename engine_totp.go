package authz

import (
	"context"
	"errors"
	"strings"

	"github.com/nebryx/authz/totp"
)

const topicOTP = "otp"

// GenerateTOTP starts two-factor enrollment for p. The secret is stored but
// two-factor stays off until EnableTOTP confirms a code.
func (e *Engine) GenerateTOTP(ctx context.Context, p *Principal) (*TOTPEnrollment, error) {
	enrollment, err := e.totp.Create(ctx, p.UID, p.Email)
	if err != nil {
		if errors.Is(err, totp.ErrSecretExists) {
			return nil, ErrOTPAlreadyExists
		}
		return nil, err
	}

	e.emitActivity(ctx, activity{principal: p, topic: topicOTP, action: "otp::generate", result: ResultSucceed})
	return &TOTPEnrollment{
		Secret:     enrollment.Secret,
		OTPAuthURL: enrollment.URL,
		QRCodeURL:  enrollment.QRCode,
	}, nil
}

// EnableTOTP turns two-factor on after verifying code against the enrolled
// secret.
func (e *Engine) EnableTOTP(ctx context.Context, p *Principal, code string) error {
	exists, err := e.totp.Exists(ctx, p.UID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrOTPNotFound
	}
	if err := e.verifyOTP(ctx, p, code, "otp::enable"); err != nil {
		return err
	}

	if err := e.directory.SetOTP(ctx, p.ID, true); err != nil {
		return err
	}
	p.OTP = true
	e.metricInc(MetricTOTPEnabled)
	e.emitActivity(ctx, activity{principal: p, topic: topicOTP, action: "otp::enable", result: ResultSucceed})
	return nil
}

// DisableTOTP verifies code, deletes the secret and turns two-factor off.
// API keys of the principal stop authenticating until it is enabled again.
func (e *Engine) DisableTOTP(ctx context.Context, p *Principal, code string) error {
	if err := e.verifyOTP(ctx, p, code, "otp::disable"); err != nil {
		return err
	}

	if err := e.totp.Delete(ctx, p.UID); err != nil {
		return err
	}
	if err := e.directory.SetOTP(ctx, p.ID, false); err != nil {
		return err
	}
	p.OTP = false
	e.metricInc(MetricTOTPDisabled)
	e.emitActivity(ctx, activity{principal: p, topic: topicOTP, action: "otp::disable", result: ResultSucceed})
	return nil
}

func (e *Engine) verifyOTP(ctx context.Context, p *Principal, code, action string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrOTPInvalidCode
	}
	if err := e.totpLimiter.Check(ctx, p.UID); err != nil {
		return e.totpLimitError(err)
	}

	valid, err := e.totp.Validate(ctx, p.UID, code)
	if err != nil {
		return err
	}
	if !valid {
		e.metricInc(MetricTOTPFailure)
		e.emitActivity(ctx, activity{principal: p, topic: topicOTP, action: action, result: ResultFailed})
		if err := e.totpLimiter.RecordFailure(ctx, p.UID); err != nil {
			return e.totpLimitError(err)
		}
		return ErrOTPInvalidCode
	}

	e.metricInc(MetricTOTPSuccess)
	_ = e.totpLimiter.Reset(ctx, p.UID)
	return nil
}
