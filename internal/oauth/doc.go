// Package oauth runs the Google authorization-code login that gates the
// calendar tools.
//
// A Controller issues login URLs whose state parameter is a fresh session
// identifier, serves the provider's redirect on its callback endpoint,
// exchanges the code for an access token, fetches the user's profile and
// records both in a session.Store. Tools then look the token up by
// session identifier.
//
// The flow is intentionally minimal:
//
//   - Tokens are never refreshed. Once the provider expires an access
//     token, Calendar calls fail until the user logs in again.
//   - The state parameter is the only correlation and CSRF check. There is
//     no PKCE and no separate nonce.
//   - A failed callback leaves its session pending, so the same state can
//     be retried with a fresh code.
//
// Upstream calls use an injected *http.Client with a bounded timeout and
// inherit the callback request's context.
package oauth
