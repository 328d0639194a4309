package authz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nebryx/authz/apikey"
	"github.com/nebryx/authz/jwt"
	"github.com/nebryx/authz/password"
	"github.com/nebryx/authz/totp"
	"github.com/nebryx/authz/uid"
)

// Config holds every tunable of the engine. Build validates a copy of it; the
// engine never reads the caller's value again.
type Config struct {
	Session    SessionConfig
	APIKey     APIKeyConfig
	JWT        JWTConfig
	TOTP       TOTPConfig
	Identifier IdentifierConfig
	Password   PasswordConfig
	Security   SecurityConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Permission PermissionConfig
	Network    NetworkConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls cookie sessions.
type SessionConfig struct {
	// Lifetime is both the initial expiry and the sliding extension applied
	// on every authorized request.
	Lifetime       time.Duration
	CSRFProtection bool
	RedisPrefix    string
	CookieName     string
	CookieSecure   bool
}

/*
====================================
API KEY CONFIG
====================================
*/

// APIKeyConfig controls HMAC-signed requests.
type APIKeyConfig struct {
	NonceLifetime time.Duration
	// RequireOTP rejects keys whose owner has two-factor disabled.
	RequireOTP bool
}

// JWTConfig controls the bearer tokens minted on every authorized request.
type JWTConfig struct {
	TTL           time.Duration
	SigningMethod jwt.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

// TOTPConfig controls two-factor enrollment and verification.
type TOTPConfig struct {
	Issuer        string
	SecretTTL     time.Duration
	UsedCodeTTL   time.Duration
	Skew          uint
	QRSize        int
	MaxAttempts   int
	AttemptWindow time.Duration
}

// IdentifierConfig controls public uid generation.
type IdentifierConfig struct {
	UserPrefix           string
	ServiceAccountPrefix string
	MaxAttempts          int
}

// PasswordConfig holds argon2id cost parameters. Legacy bcrypt digests are
// verified and rehashed on the next successful login when UpgradeOnLogin is
// set.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MaxBytes       int
	UpgradeOnLogin bool
}

// SecurityConfig controls login throttling.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// AuditConfig controls the asynchronous activity log.
type AuditConfig struct {
	Enabled       bool
	BufferSize    int
	DropIfFull    bool
	BatchSize     int
	FlushInterval time.Duration
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// PermissionConfig controls the rule table and the bypass/block file.
type PermissionConfig struct {
	RulesFile string
	// BasePath prefixes the seeded rules.
	BasePath string
	// WatchRulesFile reloads the rules file when it changes on disk.
	WatchRulesFile bool
	WatchDebounce  time.Duration
}

// NetworkConfig controls how the client address is resolved.
type NetworkConfig struct {
	// TrustedClientIPHeader, when set, replaces the remote address with the
	// header value. Only set it behind a gateway that overwrites the header.
	TrustedClientIPHeader string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Session: SessionConfig{
			Lifetime:       time.Hour,
			CSRFProtection: true,
			RedisPrefix:    "session",
			CookieName:     "_session",
			CookieSecure:   true,
		},
		APIKey: APIKeyConfig{
			NonceLifetime: apikey.DefaultNonceLifetime,
			RequireOTP:    true,
		},
		JWT: JWTConfig{
			TTL:           jwt.DefaultTTL,
			SigningMethod: jwt.MethodRS256,
			Issuer:        "nebryx",
			Audience:      "nebryx",
		},
		TOTP: TOTPConfig{
			Issuer:        "Nebryx",
			SecretTTL:     totp.DefaultSecretTTL,
			UsedCodeTTL:   totp.DefaultUsedTTL,
			Skew:          totp.DefaultSkew,
			QRSize:        200,
			MaxAttempts:   5,
			AttemptWindow: time.Minute,
		},
		Identifier: IdentifierConfig{
			UserPrefix:           "ID",
			ServiceAccountPrefix: "SI",
			MaxAttempts:          uid.DefaultMaxAttempts,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MaxBytes:       pw.MaxBytes,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:       true,
			BufferSize:    1024,
			DropIfFull:    true,
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Permission: PermissionConfig{
			RulesFile:     "config/authz_rules.yml",
			BasePath:      "/api/v2/nebryx",
			WatchDebounce: 250 * time.Millisecond,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if strings.Contains(c.Session.RedisPrefix, ":") {
		return errors.New("Session RedisPrefix must not contain ':'")
	}

	// API keys
	if c.APIKey.NonceLifetime <= 0 {
		return errors.New("APIKey NonceLifetime must be > 0")
	}

	// JWT
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case jwt.MethodRS256, jwt.MethodEd25519:
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
		return errors.New("JWT PrivateKey and PublicKey are required")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer must be set")
	}
	if c.TOTP.UsedCodeTTL <= 0 || c.TOTP.SecretTTL <= 0 {
		return errors.New("TOTP SecretTTL and UsedCodeTTL must be > 0")
	}
	if c.TOTP.MaxAttempts <= 0 || c.TOTP.AttemptWindow <= 0 {
		return errors.New("TOTP MaxAttempts and AttemptWindow must be > 0")
	}

	// Identifiers
	if c.Identifier.UserPrefix == "" || c.Identifier.ServiceAccountPrefix == "" {
		return errors.New("Identifier prefixes must be set")
	}
	if strings.EqualFold(strings.TrimSpace(c.Identifier.UserPrefix), strings.TrimSpace(c.Identifier.ServiceAccountPrefix)) {
		return errors.New("Identifier prefixes must differ")
	}
	if c.Identifier.MaxAttempts <= 0 {
		return errors.New("Identifier MaxAttempts must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0")
		}
		if c.Audit.BatchSize <= 0 || c.Audit.BatchSize > c.Audit.BufferSize {
			return errors.New("Audit BatchSize must be in (0, BufferSize]")
		}
		if c.Audit.FlushInterval <= 0 {
			return errors.New("Audit FlushInterval must be > 0")
		}
	}

	return nil
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
		MaxBytes:    c.Password.MaxBytes,
	}
}
