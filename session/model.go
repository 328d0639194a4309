package session

import "time"

// Record is the server-side state behind a session cookie.
//
// Records are keyed by (UID, SessionID). The CSRF token is a bearer secret and
// must never be logged.
type Record struct {
	SessionID string
	UID       string
	UserAgent string
	// IPRange is the masked client address captured at login.
	IPRange   string
	CSRFToken string

	CreatedAt int64 // unix milliseconds
	ExpiresAt int64 // unix milliseconds
}

// Expiry returns ExpiresAt as a time.Time.
func (r *Record) Expiry() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// Expired reports whether the record is no longer live at now. A record whose
// expiry equals now is expired.
func (r *Record) Expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}
