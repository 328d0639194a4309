// Package fieldcrypt protects sensitive attributes at rest.
//
// # Formats
//
// [Cipher] produces AES-256-GCM ciphertext rendered as three colon-separated
// hex segments: iv:authTag:ciphertext. Every call draws a fresh 16-byte IV, so
// sealing the same plaintext twice yields different output.
//
// [IndexHasher] derives a salted, one-way 32-bit value used only for equality
// search over encrypted columns (phone numbers, document numbers). Index
// values are never used to recover plaintext; collisions are resolved by the
// caller re-checking decrypted values.
//
// # Architecture boundaries
//
// [Codec] is the persistence-boundary API: repositories call it explicitly
// when mapping rows to domain values, so ownership of plaintext versus
// ciphertext is visible in the type of every field.
//
// # What this package must NOT do
//
//   - Hold package-level keys or salts.
//   - Log plaintext or key material.
package fieldcrypt
