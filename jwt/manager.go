package jwt

import (
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the asymmetric algorithm used to sign bearer tokens.
type SigningMethod string

const (
	// MethodRS256 signs with an RSA private key (PKCS#1/PKCS#8 PEM).
	MethodRS256 SigningMethod = "rs256"
	// MethodEd25519 signs with an Ed25519 key (raw or PEM).
	MethodEd25519 SigningMethod = "ed25519"

	// DefaultTTL is used when neither the config nor the caller sets an expiry.
	DefaultTTL = time.Hour
)

// ErrInvalidToken is the single opaque verification error. Callers never
// learn whether a signature, format, or expiry check failed.
var ErrInvalidToken = errors.New("invalid token")

// Config holds token signing parameters.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// Manager issues and verifies principal bearer tokens.
//
// Manager instances are immutable after NewManager and safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// Claims is the principal payload carried by a bearer token.
type Claims struct {
	UID        string `json:"uid"`
	Username   string `json:"username,omitempty"`
	Email      string `json:"email"`
	ReferralID *int64 `json:"referral_id"`
	Role       string `json:"role"`
	Level      int    `json:"level"`
	State      string `json:"state"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and parses the configured keys once.
//
// A manager without a private key can only verify tokens.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodRS256
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodRS256:
		m.method = jwt.SigningMethodRS256
		if len(cfg.PrivateKey) > 0 {
			key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
			if err != nil {
				return nil, errors.New("invalid rsa private key")
			}
			m.signKey = key
		}
		if len(cfg.PublicKey) > 0 {
			key, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKey)
			if err != nil {
				return nil, errors.New("invalid rsa public key")
			}
			m.verifyKey = key
		} else if priv, ok := m.signKey.(*rsa.PrivateKey); ok {
			m.verifyKey = &priv.PublicKey
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			key, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = key
		}
		if len(cfg.PublicKey) > 0 {
			key, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = key
		} else if priv, ok := m.signKey.(ed25519.PrivateKey); ok {
			m.verifyKey = priv.Public()
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if m.verifyKey == nil {
		return nil, fmt.Errorf("%s requires a public or private key", cfg.SigningMethod)
	}

	return m, nil
}

// TTL returns the configured default token lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.TTL
}

// Issue signs claims. A zero ttl uses the configured default; claims that
// already carry ExpiresAt keep it.
func (j *Manager) Issue(claims Claims, ttl time.Duration) (string, error) {
	if j.signKey == nil {
		return "", errors.New("token manager has no signing key")
	}
	if ttl <= 0 {
		ttl = j.config.TTL
	}

	now := time.Now()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.Issuer == "" {
		claims.Issuer = j.config.Issuer
	}
	if j.config.Audience != "" && len(claims.Audience) == 0 {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	if claims.Subject == "" {
		claims.Subject = claims.UID
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	return token.SignedString(j.signKey)
}

// Parse verifies tokenStr and returns its claims. Every failure maps to
// ErrInvalidToken.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.verifyKey, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
