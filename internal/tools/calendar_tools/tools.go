package calendar_tools

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calendar-mcp/internal/calendar"
	"github.com/teemow/calendar-mcp/internal/server"
	"github.com/teemow/calendar-mcp/internal/tools/common"
)

const (
	notLoggedInText = "User has not logged in yet"
	missingValue    = "n/a"
)

const sessionIDDescription = "Session ID obtained from get_url"

// RegisterCalendarTools registers every calendar-mcp tool with the MCP server.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := RegisterSessionTools(s, sc); err != nil {
		return fmt.Errorf("failed to register session tools: %w", err)
	}
	if err := RegisterCalendarListTools(s, sc); err != nil {
		return fmt.Errorf("failed to register calendar tools: %w", err)
	}
	if err := RegisterEventTools(s, sc); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}
	return nil
}

func withSessionID() mcp.ToolOption {
	return mcp.WithString(common.ArgSessionID,
		mcp.Required(),
		mcp.Description(sessionIDDescription),
	)
}

// sessionClient returns a Calendar client for the request's session. When
// it returns a result instead, the handler must return that result as is.
func sessionClient(ctx context.Context, args map[string]any, sc *server.ServerContext) (*calendar.Client, *mcp.CallToolResult) {
	sid, err := common.RequiredString(args, common.ArgSessionID)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	if !sc.OAuth().IsAuthenticated(ctx, sid) {
		return nil, mcp.NewToolResultText(notLoggedInText)
	}
	client, err := sc.CalendarClient(ctx, sid)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to create Calendar client: %v", err))
	}
	return client, nil
}

// upstreamError turns a Calendar API failure into a tool error result.
func upstreamError(action string, err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("Failed to %s: %v", action, err)
	if calendar.StatusCode(err) == http.StatusUnauthorized {
		msg += "\nThe access token was rejected. Call get_url to log in again."
	}
	return mcp.NewToolResultError(msg)
}

func orMissing(v string) string {
	if v == "" {
		return missingValue
	}
	return v
}
