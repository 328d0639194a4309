// Package session provides redis-backed persistence for cookie sessions.
//
// A [Record] binds a session to the user-agent and masked IP range seen at
// login and carries the CSRF token for state-changing requests. Records are
// stored in a compact binary layout with an explicit version byte.
//
// This package owns storage only. Binding checks, CSRF enforcement, and
// permission evaluation belong to the engine.
package session
