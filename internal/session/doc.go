// Package session holds the login state of every OAuth session.
//
// A session is created Pending when a login URL is issued and becomes
// Authenticated once the OAuth callback for its ID completes. Sessions are
// never removed. Transitions are validated by a small state machine so that
// an authenticated session can never fall back to pending.
//
// Storage is pluggable: MemoryBackend keeps sessions for the lifetime of the
// process, SQLiteBackend keeps them across restarts.
package session
