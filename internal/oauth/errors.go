package oauth

import (
	"fmt"
	"net/http"

	"github.com/teemow/calendar-mcp/internal/instrumentation"
)

// ErrorKind classifies a failed callback.
type ErrorKind string

const (
	// KindMissingParams means code or state was absent. No session changes.
	KindMissingParams ErrorKind = instrumentation.OAuthResultMissingParams

	// KindTokenExchange means the token endpoint rejected the code. The
	// session stays pending.
	KindTokenExchange ErrorKind = instrumentation.OAuthResultTokenExchange

	// KindUserInfo means the token was issued but the profile lookup
	// failed. The session stays pending.
	KindUserInfo ErrorKind = instrumentation.OAuthResultUserInfo

	// KindSessionStore means the session backend refused the write.
	KindSessionStore ErrorKind = instrumentation.OAuthResultStoreFailed
)

// CallbackError is returned by HandleCallback and rendered as the HTTP
// response of the callback endpoint.
type CallbackError struct {
	Kind        ErrorKind
	Description string
	Status      int
	Err         error
}

func (e *CallbackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

func errMissingParams(desc string) *CallbackError {
	return &CallbackError{Kind: KindMissingParams, Description: desc, Status: http.StatusNotFound}
}

func errTokenExchange(err error) *CallbackError {
	return &CallbackError{
		Kind:        KindTokenExchange,
		Description: "Failed to exchange authorization code",
		Status:      http.StatusInternalServerError,
		Err:         err,
	}
}

func errUserInfo(err error) *CallbackError {
	return &CallbackError{
		Kind:        KindUserInfo,
		Description: "Failed to fetch user information",
		Status:      http.StatusInternalServerError,
		Err:         err,
	}
}

func errSessionStore(err error) *CallbackError {
	return &CallbackError{
		Kind:        KindSessionStore,
		Description: "Failed to save session",
		Status:      http.StatusInternalServerError,
		Err:         err,
	}
}
