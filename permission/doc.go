// Package permission resolves role, verb, and path against prefix rules.
//
// A request is allowed only when at least one rule matches, none of the
// matching rules is DROP, and at least one is ACCEPT. The topic of the first
// matching AUDIT rule is returned so callers can record the access.
//
// [Table] memoizes rules per role in process memory. It is the only shared
// state in the authorization hot path and is invalidated explicitly whenever
// rules change.
package permission
