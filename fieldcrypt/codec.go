package fieldcrypt

import "errors"

// Sealed is the stored form of an indexed attribute.
type Sealed struct {
	Ciphertext string
	Index      uint32
}

// Codec pairs a Cipher and an IndexHasher for use at the persistence
// boundary.
type Codec struct {
	cipher *Cipher
	index  *IndexHasher
}

// NewCodec builds a Codec. Both dependencies are required.
func NewCodec(c *Cipher, h *IndexHasher) (*Codec, error) {
	if c == nil || h == nil {
		return nil, errors.New("fieldcrypt: cipher and index hasher are required")
	}
	return &Codec{cipher: c, index: h}, nil
}

// Encrypt seals a non-indexed attribute.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	return c.cipher.Encrypt(plaintext)
}

// Decrypt opens a non-indexed attribute.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	return c.cipher.Decrypt(ciphertext)
}

// Seal encrypts value and computes its lookup index.
func (c *Codec) Seal(value string) (Sealed, error) {
	ct, err := c.cipher.Encrypt(value)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{Ciphertext: ct, Index: c.index.Hash(value)}, nil
}

// Open decrypts a sealed attribute. The index is not consulted.
func (c *Codec) Open(s Sealed) (string, error) {
	return c.cipher.Decrypt(s.Ciphertext)
}

// Index computes the lookup value for an equality query without touching
// any stored ciphertext.
func (c *Codec) Index(value string) uint32 {
	return c.index.Hash(value)
}

// Matches reports whether a candidate row found by index really holds value.
func (c *Codec) Matches(s Sealed, value string) (bool, error) {
	if s.Index != c.index.Hash(value) {
		return false, nil
	}
	plain, err := c.cipher.Decrypt(s.Ciphertext)
	if err != nil {
		return false, err
	}
	return plain == value, nil
}
