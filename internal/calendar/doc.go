// Package calendar wraps the Google Calendar v3 API for one logged-in session.
//
// A Client is authenticated with the session's access token and is meant to
// live for a single tool invocation. Tokens are never refreshed; an expired
// token surfaces as an upstream 401 and the user logs in again.
//
// Calendars and events created through this package carry ManagedDescription.
// Patch and delete operations refuse resources without it and return an error
// wrapping ErrNotManaged.
//
//	client, err := calendar.NewClientForSession(ctx, controller, sessionID)
//	if err != nil {
//	    return err
//	}
//	events, err := client.ListEvents(ctx, "primary")
package calendar
