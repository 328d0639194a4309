package authz

import (
	"context"
	"time"

	"github.com/nebryx/authz/jwt"
	"github.com/nebryx/authz/permission"
)

// Principal states.
const (
	StateActive  = "active"
	StatePending = "pending"
	StateBanned  = "banned"
	StateDeleted = "deleted"
)

// Roles that the seeded rule set and the bearer guard know about.
const (
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// API key states.
const (
	KeyStateActive   = "active"
	KeyStateInactive = "inactive"
)

// Authentication methods recorded on AuthResult.
const (
	MethodSession = "session"
	MethodAPIKey  = "apikey"
)

// Principal is a user account as seen by the engine.
type Principal struct {
	ID             int64
	UID            string
	Email          string
	Username       string
	Role           string
	Level          int
	State          string
	OTP            bool
	PasswordDigest string
	ReferralID     *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Live reports whether the principal may authenticate. Pending accounts are
// allowed through; every other non-active state is not.
func (p *Principal) Live() bool {
	return p != nil && (p.State == StateActive || p.State == StatePending)
}

// Claims returns the token payload for p.
func (p *Principal) Claims() jwt.Claims {
	return jwt.Claims{
		UID:        p.UID,
		Username:   p.Username,
		Email:      p.Email,
		ReferralID: p.ReferralID,
		Role:       p.Role,
		Level:      p.Level,
		State:      p.State,
	}
}

// APIKey is a programmatic credential owned by a principal. Secret holds the
// plaintext HMAC secret; stores decrypt it at the persistence boundary and it
// must never be logged or returned after creation.
type APIKey struct {
	ID        int64
	OwnerID   int64
	KID       string
	Algorithm string
	Scope     string
	Secret    string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the key may authenticate requests.
func (k *APIKey) Active() bool {
	return k != nil && k.State == KeyStateActive
}

// NewPrincipal is the input to Directory.CreatePrincipal. The directory
// assigns ID and UID.
type NewPrincipal struct {
	Email          string
	Username       string
	PasswordDigest string
	Role           string
	State          string
	ReferralID     *int64
}

// Directory is the principal store consumed by the engine. Lookups return
// ErrPrincipalNotFound on a miss.
type Directory interface {
	PrincipalByUID(ctx context.Context, uid string) (*Principal, error)
	PrincipalByID(ctx context.Context, id int64) (*Principal, error)
	PrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	CreatePrincipal(ctx context.Context, in NewPrincipal) (*Principal, error)
	UpdatePasswordDigest(ctx context.Context, id int64, digest string) error
	SetOTP(ctx context.Context, id int64, enabled bool) error
}

// KeyStore persists API keys. APIKeyByKID returns ErrKeyNotFound on a miss.
// SetAPIKeyState returns ErrKeyNotFound when kid is not owned by ownerID.
type KeyStore interface {
	APIKeyByKID(ctx context.Context, kid string) (*APIKey, error)
	CreateAPIKey(ctx context.Context, key *APIKey) error
	ListAPIKeys(ctx context.Context, ownerID int64) ([]APIKey, error)
	SetAPIKeyState(ctx context.Context, ownerID int64, kid, state string) error
}

// RuleStore backs the permission table and the admin rule operations. Writes
// return ErrRuleExists and ErrRuleNotFound.
type RuleStore interface {
	permission.Source
	ListRules(ctx context.Context, offset, limit int) ([]permission.Rule, int64, error)
	RuleByID(ctx context.Context, id int64) (*permission.Rule, error)
	CreateRule(ctx context.Context, rule *permission.Rule) error
	UpdateRule(ctx context.Context, rule *permission.Rule) error
	DeleteRule(ctx context.Context, id int64) error
}

// Request is the transport-neutral view of an incoming call that Authorize
// evaluates.
type Request struct {
	Method    string
	Path      string
	UserAgent string
	ClientIP  string

	// API key headers.
	APIKeyID  string
	Nonce     string
	Signature string

	// Cookie session.
	SessionUID string
	SessionID  string
	CSRFToken  string
}

// HasAPIKeyHeaders reports whether all three API key headers are present.
func (r *Request) HasAPIKeyHeaders() bool {
	return r.APIKeyID != "" && r.Nonce != "" && r.Signature != ""
}

// AuthResult is attached to the request context after a successful Authorize.
type AuthResult struct {
	Principal *Principal
	// Token is "Bearer <jwt>"; empty when the path was passed through.
	Token string
	Topic string
	Audit bool
	// Method is MethodSession or MethodAPIKey.
	Method    string
	SessionID string
	KID       string
	// Bypassed is set when a pass rule skipped authentication.
	Bypassed bool
}

// LoginInput carries the credentials submitted to Login.
type LoginInput struct {
	Email    string
	Password string
	OTPCode  string
}

// LoginResult is returned by a successful Login. The caller sets the session
// cookie from UID and SessionID and hands CSRFToken to the client.
type LoginResult struct {
	Principal *Principal
	SessionID string
	CSRFToken string
	ExpiresAt time.Time
}

// RegisterInput carries a new account's fields.
type RegisterInput struct {
	Email       string
	Password    string
	Username    string
	ReferralUID string
}

// TOTPEnrollment is returned by GenerateTOTP.
type TOTPEnrollment struct {
	Secret     string
	OTPAuthURL string
	QRCodeURL  string
}

// CreatedAPIKey is returned once by CreateAPIKey and is the only place the
// plaintext secret is exposed.
type CreatedAPIKey struct {
	KID       string
	Secret    string
	Algorithm string
	Scope     string
	State     string
}
