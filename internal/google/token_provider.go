package google

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when a session has no usable access token,
// either because it never logged in or because the login is still pending.
var ErrNoToken = errors.New("no access token for session")

// TokenProvider supplies the OAuth token of a login session to Google API clients.
type TokenProvider interface {
	// TokenForSession returns the session's token, or an error wrapping ErrNoToken.
	TokenForSession(ctx context.Context, sessionID string) (*oauth2.Token, error)
}

// TokenProviderFunc adapts a function to the TokenProvider interface.
type TokenProviderFunc func(ctx context.Context, sessionID string) (*oauth2.Token, error)

// TokenForSession calls f.
func (f TokenProviderFunc) TokenForSession(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	return f(ctx, sessionID)
}
