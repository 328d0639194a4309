// Package authz authorizes requests to the platform's HTTP API and manages
// the credentials that authorization relies on: cookie sessions, TOTP second
// factors, and HMAC-signed API keys.
//
// Every request passes through [Engine.Authorize]. A path-level rules file
// may block a request or let it through unauthenticated. Otherwise the caller
// is authenticated by API key headers or by the session cookie, and the
// principal's role rules decide access. A successful request carries a freshly
// minted bearer token for downstream services.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// authz is the public surface. It exposes [Engine], [Builder], [Config] and
// the value types that cross its API. Persistence is consumed through the
// [Directory], [KeyStore] and [RuleStore] interfaces; the postgres
// implementations live under internal/postgres. Redis is used for session
// records, TOTP secrets, replay markers and limiters.
//
// Errors meant for clients are [*CodeError] values. Any other error returned
// by the engine is an infrastructure failure and should be reported as
// [ErrInternal].
package authz
