package instrumentation

import "strings"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcomes of the OAuth callback.
const (
	OAuthResultSuccess       = "success"
	OAuthResultMissingParams = "missing_callback_params"
	OAuthResultTokenExchange = "token_exchange_failed"
	OAuthResultUserInfo      = "userinfo_fetch_failed"
	OAuthResultStoreFailed   = "session_store_failed"
)

// Calls made to the OAuth provider during a callback.
const (
	StepTokenExchange = "token_exchange"
	StepUserInfo      = "userinfo"
)

// Calendar API resources and operations.
const (
	ResourceCalendar = "calendar"
	ResourceEvent    = "event"

	OperationList   = "list"
	OperationGet    = "get"
	OperationCreate = "create"
	OperationPatch  = "patch"
	OperationDelete = "delete"
)

// sessionStateNone mirrors the store's state for IDs it has never seen.
const sessionStateNone = "none"

// ExtractUserDomain returns the domain of an email address, or "unknown".
func ExtractUserDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return "unknown"
	}
	return strings.ToLower(email[at+1:])
}
