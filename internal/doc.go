// Package internal holds helpers private to the authz module: random session
// identifiers, CSRF tokens, and IP range masking for session binding.
//
// Sub-packages:
//   - audit: batched asynchronous activity writes
//   - rate: redis-backed login throttling
//   - postgres: gorm models, repositories, and migrations
//   - bootstrap: daemon configuration and wiring
package internal
