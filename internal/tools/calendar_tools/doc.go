// Package calendar_tools registers the calendar-mcp tools on an MCP server.
//
// Login tools (get_url, verify_login, get_user) drive the OAuth flow. The
// calendar and event tools act on behalf of an authenticated session and
// answer "User has not logged in yet" for any other session ID.
package calendar_tools
