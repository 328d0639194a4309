package fieldcrypt

import (
	"crypto/sha256"
	"encoding/binary"
)

// IndexHasher derives equality-search values for encrypted columns.
type IndexHasher struct {
	salt string
}

// NewIndexHasher returns a hasher bound to salt.
func NewIndexHasher(salt string) *IndexHasher {
	return &IndexHasher{salt: salt}
}

// Hash returns the first 32 bits of SHA-256(salt || value).
func (h *IndexHasher) Hash(value string) uint32 {
	sum := sha256.Sum256([]byte(h.salt + value))
	return binary.BigEndian.Uint32(sum[:4])
}
