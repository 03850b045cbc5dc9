// Package logging provides structured logging utilities for calendar-mcp.
//
// All logging goes through the standard library's slog package. This package
// builds the process logger and centralizes attribute names so that log lines
// from the session store, the OAuth callback and the tool handlers can be
// correlated.
//
// # Usage Patterns
//
//	logger := logging.WithOperation(slog.Default(), "oauth.callback")
//	logger.Info("login completed",
//	    logging.Session(sessionID),
//	    logging.UserHash(email))
//
// # Security Considerations
//
//   - Session identifiers double as the OAuth state value and are hashed before logging
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - Access tokens are never logged, only their length
package logging
