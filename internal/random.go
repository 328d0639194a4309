package internal

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

const csrfTokenSize = 32

// NewSessionID returns a random UUIDv4 string.
func NewSessionID() string {
	return uuid.NewString()
}

// NewCSRFToken returns 32 random bytes as unpadded base64url.
func NewCSRFToken() (string, error) {
	b := make([]byte, csrfTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
