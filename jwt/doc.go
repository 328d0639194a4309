// Package jwt issues and verifies asymmetrically signed bearer tokens that carry
// principal claims (uid, username, email, role, level, state, referral).
//
// Verification failures are deliberately collapsed into [ErrInvalidToken]:
// callers cannot distinguish a bad signature from a malformed or expired token.
package jwt
