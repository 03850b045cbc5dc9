package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// AnonymizeEmail returns a hashed representation of an email for logging purposes.
// This allows correlation of log entries without exposing PII.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(hash[:8])
}

// SessionHash returns a short stable digest of a session ID.
// The session ID is the OAuth state value, so anyone holding it can complete
// a login on the user's behalf.
func SessionHash(sessionID string) string {
	if sessionID == "" {
		return "<none>"
	}
	hash := sha256.Sum256([]byte(sessionID))
	return "sid:" + hex.EncodeToString(hash[:6])
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
