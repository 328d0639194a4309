package authz

import (
	"errors"
	"net/http"
)

// CodeError is a failure that is safe to return to the caller. Code is the
// public error identifier and Status the HTTP status it maps to.
type CodeError struct {
	Code   string
	Status int
}

func (e *CodeError) Error() string { return e.Code }

func newCodeError(code string, status int) *CodeError {
	return &CodeError{Code: code, Status: status}
}

// Authorization middleware codes.
var (
	ErrPathBlocked            = newCodeError("authz.path_blocked", http.StatusForbidden)
	ErrInvalidSession         = newCodeError("authz.invalid_session", http.StatusUnauthorized)
	ErrMissingCSRFToken       = newCodeError("authz.missing_csrf_token", http.StatusUnauthorized)
	ErrCSRFTokenMismatch      = newCodeError("authz.csrf_token_mismatch", http.StatusUnauthorized)
	ErrClientSessionMismatch  = newCodeError("authz.client_session_mismatch", http.StatusUnauthorized)
	ErrUserNotActive          = newCodeError("authz.user_not_active", http.StatusUnauthorized)
	ErrInvalidPermission      = newCodeError("authz.invalid_permission", http.StatusUnauthorized)
	ErrNonceNotValidTimestamp = newCodeError("authz.nonce_not_valid_timestamp", http.StatusUnauthorized)
	ErrNonceExpired           = newCodeError("authz.nonce_expired", http.StatusUnauthorized)
	ErrAPIKeyNotActive        = newCodeError("authz.apikey_not_active", http.StatusUnauthorized)
	ErrInvalidSignature       = newCodeError("authz.invalid_signature", http.StatusUnauthorized)
	ErrUnexistentAPIKey       = newCodeError("authz.unexistent_apikey", http.StatusUnauthorized)
	ErrDisabled2FA            = newCodeError("authz.disabled_2fa", http.StatusUnauthorized)

	// ErrForbiddenRole is the bearer guard's role failure.
	ErrForbiddenRole = newCodeError("authz.invalid_permission", http.StatusForbidden)
)

// Identity codes.
var (
	ErrMissingEmail     = newCodeError("identity.session.missing_email", http.StatusUnprocessableEntity)
	ErrMissingPassword  = newCodeError("identity.session.missing_password", http.StatusUnprocessableEntity)
	ErrInvalidParams    = newCodeError("identity.session.invalid_params", http.StatusUnauthorized)
	ErrBanned           = newCodeError("identity.session.banned", http.StatusUnauthorized)
	ErrDeleted          = newCodeError("identity.session.deleted", http.StatusUnauthorized)
	ErrNotActive        = newCodeError("identity.session.not_active", http.StatusUnauthorized)
	ErrMissingOTP       = newCodeError("identity.session.missing_otp", http.StatusUnauthorized)
	ErrInvalidOTP       = newCodeError("identity.session.invalid_otp", http.StatusForbidden)
	ErrSessionNotFound  = newCodeError("identity.session.not_found", http.StatusNotFound)
	ErrLoginRateLimited = newCodeError("identity.session.too_many_attempts", http.StatusTooManyRequests)
	ErrWeakPassword     = newCodeError("identity.user.password_weak", http.StatusUnprocessableEntity)
	ErrInvalidEmail     = newCodeError("identity.user.invalid_email", http.StatusUnprocessableEntity)
	ErrEmailExists      = newCodeError("identity.user.email_exists", http.StatusUnprocessableEntity)
	ErrReferralFormat   = newCodeError("identity.user.invalid_referral_format", http.StatusUnprocessableEntity)
	ErrReferralNotFound = newCodeError("identity.user.referral_doesnt_exist", http.StatusUnprocessableEntity)
	ErrCurrentPassword  = newCodeError("identity.user.invalid_current_password", http.StatusUnprocessableEntity)
)

// Resource codes.
var (
	ErrOTPAlreadyExists = newCodeError("resource.otp.already_exists", http.StatusConflict)
	ErrOTPNotFound      = newCodeError("resource.otp.not_found", http.StatusNotFound)
	ErrOTPInvalidCode   = newCodeError("resource.otp.invalid_code", http.StatusUnprocessableEntity)
	ErrOTPRateLimited   = newCodeError("resource.otp.rate_limited", http.StatusTooManyRequests)
	ErrAPIKeyNotFound   = newCodeError("resource.apikey.not_found", http.StatusNotFound)
	ErrAPIKeyAlgorithm  = newCodeError("resource.apikey.invalid_algorithm", http.StatusUnprocessableEntity)
)

// Admin permission codes.
var (
	ErrPermissionInvalidVerb   = newCodeError("admin.permissions.invalid_verb", http.StatusUnprocessableEntity)
	ErrPermissionInvalidAction = newCodeError("admin.permissions.invalid_action", http.StatusUnprocessableEntity)
	ErrPermissionMissingFields = newCodeError("admin.permissions.missing_fields", http.StatusUnprocessableEntity)
	ErrPermissionExists        = newCodeError("admin.permission.already_exists", http.StatusUnprocessableEntity)
	ErrPermissionNotFound      = newCodeError("admin.permission.doesnt_exist", http.StatusNotFound)
)

// ErrInternal is what callers see for any failure that is not a CodeError.
var ErrInternal = newCodeError("server.internal_error", http.StatusInternalServerError)

// ErrInvalidBody is returned by HTTP handlers for a malformed JSON body.
var ErrInvalidBody = newCodeError("server.invalid_body", http.StatusBadRequest)

// Backend sentinels. Directory and KeyStore implementations return these so
// the engine can tell a miss from an outage.
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalExists   = errors.New("principal already exists")
	ErrKeyNotFound       = errors.New("api key not found")
	ErrRuleNotFound      = errors.New("permission rule not found")
	ErrRuleExists        = errors.New("permission rule already exists")
	ErrRedisUnavailable  = errors.New("redis unavailable")
	ErrDirectoryFailure  = errors.New("directory unavailable")
	ErrEngineNotReady    = errors.New("engine not initialized")
	ErrBuilderUsed       = errors.New("builder already used")
	ErrMissingDependency = errors.New("required dependency not configured")
)

// Classify returns the CodeError carried by err, or ErrInternal.
func Classify(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrInternal
}
