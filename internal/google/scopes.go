package google

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Google OAuth scopes requested at login.
const (
	ScopeProfile  = "https://www.googleapis.com/auth/userinfo.profile"
	ScopeEmail    = "https://www.googleapis.com/auth/userinfo.email"
	ScopeCalendar = "https://www.googleapis.com/auth/calendar"
	ScopeOpenID   = "openid"
)

// DefaultOAuthScopes are requested on every login: profile and email for the
// user-info lookup, calendar for the tools, openid for the subject claim.
var DefaultOAuthScopes = []string{
	ScopeProfile,
	ScopeEmail,
	ScopeCalendar,
	ScopeOpenID,
}

// UserInfoURL is Google's OpenID Connect user-info endpoint.
const UserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// Endpoint returns Google's authorization and token endpoints with client
// credentials sent in the form body of the token request.
func Endpoint() oauth2.Endpoint {
	ep := google.Endpoint
	ep.AuthStyle = oauth2.AuthStyleInParams
	return ep
}
