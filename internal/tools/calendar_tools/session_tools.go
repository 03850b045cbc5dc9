package calendar_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calendar-mcp/internal/server"
	"github.com/teemow/calendar-mcp/internal/tools/common"
)

// RegisterSessionTools registers the login tools.
func RegisterSessionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getURLTool := mcp.NewTool("get_url",
		mcp.WithDescription(`Get a Google login URL and a session ID for calendar access.
Show the URL to the user exactly as returned. Keep the session ID for later tool calls; it is not meant for the user.
Do not verify the login or call other tools until the user says they have logged in.`),
	)
	s.AddTool(getURLTool, common.InstrumentedToolHandler("get_url", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetURL(ctx, request, sc)
		}))

	verifyLoginTool := mcp.NewTool("verify_login",
		mcp.WithDescription("Check whether the user completed the login started by get_url. One successful check is enough."),
		withSessionID(),
	)
	s.AddTool(verifyLoginTool, common.InstrumentedToolHandler("verify_login", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleVerifyLogin(ctx, request, sc)
		}))

	getUserTool := mcp.NewTool("get_user",
		mcp.WithDescription("Get the email, name and Google account ID of the logged-in user."),
		withSessionID(),
	)
	s.AddTool(getUserTool, common.InstrumentedToolHandler("get_user", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetUser(ctx, request, sc)
		}))

	return nil
}

func handleGetURL(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	url, sid, err := sc.OAuth().BeginLogin(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start login: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("URL: %s\nsession_id: %s", url, sid)), nil
}

func handleVerifyLogin(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sid, err := common.RequiredString(request.GetArguments(), common.ArgSessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Logged in: %t", sc.OAuth().IsAuthenticated(ctx, sid))), nil
}

func handleGetUser(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sid, err := common.RequiredString(request.GetArguments(), common.ArgSessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, ok := sc.OAuth().UserInfo(ctx, sid)
	if !ok {
		return mcp.NewToolResultText(notLoggedInText), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("email: %s\nname: %s\nid: %s",
		orMissing(info.Email()), orMissing(info.Name()), orMissing(info.Subject()))), nil
}
