// Package middleware adapts [authz.Engine] to net/http.
//
// [Authorize] guards the resource API: it turns the request's cookie, CSRF
// header and API key headers into an [authz.Request], and on success exposes
// the principal through the request context and forwards the minted bearer
// token in the Authorization header. [RequireRole] guards internal routes
// that already carry such a token.
//
// Failures are written as {"errors":["<code>"]} with the status of the
// matching [authz.CodeError]. The package makes no decisions of its own.
package middleware
