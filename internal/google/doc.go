// Package google holds the Google-specific OAuth constants shared by the
// login flow and the Calendar client, and the TokenProvider abstraction the
// Calendar client uses to obtain a session's access token.
package google
