// Package password hashes principal passwords with Argon2id and verifies both
// Argon2id PHC strings and legacy bcrypt digests.
//
// New digests use the PHC layout:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt digests ($2a$, $2b$, $2y$) verify normally and always report
// [Hasher.NeedsUpgrade] so callers can rehash on the next successful login.
package password
