package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

const (
	keySize = 32
	ivSize  = 16
	tagSize = 16
)

var (
	// ErrInvalidKey is returned when the configured key is not 64 hex characters.
	ErrInvalidKey = errors.New("fieldcrypt: encryption key must be 64 hex characters (32 bytes)")
	// ErrInvalidFormat is returned when a sealed value is not iv:authTag:ciphertext.
	ErrInvalidFormat = errors.New("fieldcrypt: invalid encrypted text format")
	// ErrDecryptionFailed is returned when the authentication tag does not verify.
	ErrDecryptionFailed = errors.New("fieldcrypt: decryption failed")
)

// Cipher seals and opens attribute values with AES-256-GCM.
//
// A Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCipher builds a Cipher from a 64-character hex key.
func NewCipher(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}
	return newCipher(key, rand.Reader)
}

func newCipher(key []byte, r io.Reader) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead, rand: r}, nil
}

// Encrypt seals plaintext. An empty plaintext encrypts to an empty string so
// that nullable columns stay null.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	var b strings.Builder
	b.Grow(2*(ivSize+tagSize+len(body)) + 2)
	b.WriteString(hex.EncodeToString(iv))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(tag))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(body))
	return b.String(), nil
}

// Decrypt opens a value produced by Encrypt. All three segments are required.
func (c *Cipher) Decrypt(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return "", ErrInvalidFormat
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrInvalidFormat
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrInvalidFormat
	}
	body, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidFormat
	}

	plain, err := c.aead.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
