// Package uid generates prefixed public identifiers for principals.
//
// Identifiers look like PREFIX + 10 uppercase hex characters (5 random bytes).
// Users and service accounts share one namespace, so the uniqueness predicate
// supplied by callers must check every principal kind.
package uid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	randomBytes        = 5
	DefaultMaxAttempts = 100
)

// ErrExhausted is returned when no free identifier was found within the
// attempt bound.
var ErrExhausted = errors.New("uid: failed to generate unique identifier after maximum attempts")

// ExistsFunc reports whether candidate is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Generator produces identifiers. The zero value is not usable; call New.
type Generator struct {
	maxAttempts int
	rand        io.Reader
}

// New returns a Generator that retries at most maxAttempts times.
// Non-positive values fall back to DefaultMaxAttempts.
func New(maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{maxAttempts: maxAttempts, rand: rand.Reader}
}

// Generate returns a fresh identifier with the given prefix. A nil exists
// predicate accepts the first candidate.
func (g *Generator) Generate(ctx context.Context, prefix string, exists ExistsFunc) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	buf := make([]byte, randomBytes)

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", err
		}
		candidate := prefix + strings.ToUpper(hex.EncodeToString(buf))

		if exists == nil {
			return candidate, nil
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("uid: uniqueness check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", ErrExhausted
}
