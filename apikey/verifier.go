package apikey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Header names for the signed request path. All three must be present.
const (
	HeaderKeyID     = "X-Auth-Apikey"
	HeaderNonce     = "X-Auth-Nonce"
	HeaderSignature = "X-Auth-Signature"

	DefaultNonceLifetime = 5000 * time.Millisecond

	kidBytes    = 16
	secretBytes = 32
)

var (
	// ErrNonceNotTimestamp is returned for a nonce that is not a positive integer.
	ErrNonceNotTimestamp = errors.New("apikey: nonce is not a valid timestamp")
	// ErrNonceExpired is returned when the nonce is outside the window.
	ErrNonceExpired = errors.New("apikey: nonce expired")
	// ErrInvalidSignature is returned when the signature does not match.
	ErrInvalidSignature = errors.New("apikey: invalid signature")
)

// Algorithms accepted at key creation.
var Algorithms = []string{"HS256", "HS384", "HS512"}

// ValidAlgorithm reports whether alg is a supported key algorithm.
func ValidAlgorithm(alg string) bool {
	for _, a := range Algorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// Verifier checks nonces and signatures.
type Verifier struct {
	lifetime time.Duration
	now      func() time.Time
}

// NewVerifier returns a Verifier with the given nonce window and clock.
// Non-positive lifetimes use DefaultNonceLifetime; a nil clock uses time.Now.
func NewVerifier(lifetime time.Duration, now func() time.Time) *Verifier {
	if lifetime <= 0 {
		lifetime = DefaultNonceLifetime
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{lifetime: lifetime, now: now}
}

// Lifetime returns the configured nonce window.
func (v *Verifier) Lifetime() time.Duration { return v.lifetime }

// CheckNonce parses raw as unix milliseconds and enforces
// |now - nonce| < lifetime.
func (v *Verifier) CheckNonce(raw string) (int64, error) {
	nonce, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || nonce <= 0 {
		return 0, ErrNonceNotTimestamp
	}
	delta := v.now().UnixMilli() - nonce
	if delta < 0 {
		delta = -delta
	}
	if delta >= v.lifetime.Milliseconds() {
		return 0, ErrNonceExpired
	}
	return nonce, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of method+path+nonce.
func Sign(secret, method, path, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method + path + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature with the expected value in constant time.
// Hex case is ignored.
func (v *Verifier) Verify(secret, method, path, nonce, signature string) error {
	expected, _ := hex.DecodeString(Sign(secret, method, path, nonce))
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || !hmac.Equal(expected, got) {
		return ErrInvalidSignature
	}
	return nil
}

// Credentials is a freshly minted key pair. Secret is plaintext and must be
// shown once and then discarded.
type Credentials struct {
	KID    string
	Secret string
}

// NewCredentials generates a 16-byte hex kid and a 32-byte hex secret.
func NewCredentials() (Credentials, error) {
	kid := make([]byte, kidBytes)
	if _, err := rand.Read(kid); err != nil {
		return Credentials{}, err
	}
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return Credentials{}, err
	}
	return Credentials{KID: hex.EncodeToString(kid), Secret: hex.EncodeToString(secret)}, nil
}
