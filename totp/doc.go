// Package totp enrolls and verifies time-based one-time passwords.
//
// Secrets live in redis under totp:keys:{uid} for about a year. Accepted codes
// are marked under totp:code:{uid}:{code} for a minute so the same code cannot
// be replayed inside its validity window.
package totp
