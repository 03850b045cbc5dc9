package calendar_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calendar-mcp/internal/calendar"
	"github.com/teemow/calendar-mcp/internal/server"
	"github.com/teemow/calendar-mcp/internal/tools/common"
)

// RegisterCalendarListTools registers the calendar management tools.
func RegisterCalendarListTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listCalendarsTool := mcp.NewTool("list_calendars",
		mcp.WithDescription("List the user's calendars with their IDs. Use it when a calendar_id is unknown."),
		withSessionID(),
	)
	s.AddTool(listCalendarsTool, common.InstrumentedToolHandler("list_calendars", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListCalendars(ctx, request, sc)
		}))

	createCalendarTool := mcp.NewTool("create_calendar",
		mcp.WithDescription("Create a new calendar. Ask the user for a name if none was given."),
		withSessionID(),
		mcp.WithString("calendar_name",
			mcp.Required(),
			mcp.Description("Name of the new calendar"),
		),
	)
	s.AddTool(createCalendarTool, common.InstrumentedToolHandler("create_calendar", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateCalendar(ctx, request, sc)
		}))

	patchCalendarTool := mcp.NewTool("patch_calendar",
		mcp.WithDescription("Rename a calendar. Only calendars created through this server can be renamed."),
		withSessionID(),
		mcp.WithString("calendar_id",
			mcp.Required(),
			mcp.Description("Calendar ID from create_calendar or list_calendars"),
		),
		mcp.WithString("new_calendar_name",
			mcp.Required(),
			mcp.Description("New calendar name"),
		),
	)
	s.AddTool(patchCalendarTool, common.InstrumentedToolHandler("patch_calendar", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handlePatchCalendar(ctx, request, sc)
		}))

	deleteCalendarTool := mcp.NewTool("delete_calendar",
		mcp.WithDescription("Delete a calendar. Only calendars created through this server can be deleted."),
		withSessionID(),
		mcp.WithString("calendar_id",
			mcp.Required(),
			mcp.Description("Calendar ID from create_calendar or list_calendars"),
		),
	)
	s.AddTool(deleteCalendarTool, common.InstrumentedToolHandler("delete_calendar", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteCalendar(ctx, request, sc)
		}))

	return nil
}

func handleListCalendars(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, res := sessionClient(ctx, request.GetArguments(), sc)
	if res != nil {
		return res, nil
	}

	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return upstreamError("list calendars", err), nil
	}

	var b strings.Builder
	b.WriteString("Calendars:\n")
	for _, cal := range calendars {
		fmt.Fprintf(&b, "Name: %s\nId: %s\n\n", cal.Summary, cal.ID)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleCreateCalendar(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	client, res := sessionClient(ctx, args, sc)
	if res != nil {
		return res, nil
	}
	name, err := common.RequiredString(args, "calendar_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cal, err := client.CreateCalendar(ctx, name)
	if err != nil {
		return upstreamError("create calendar", err), nil
	}
	return mcp.NewToolResultText("calendar_id: " + cal.ID), nil
}

func handlePatchCalendar(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	client, res := sessionClient(ctx, args, sc)
	if res != nil {
		return res, nil
	}
	calendarID, err := common.RequiredString(args, "calendar_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newName, err := common.RequiredString(args, "new_calendar_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	_, err = client.PatchCalendar(ctx, calendarID, newName)
	if errors.Is(err, calendar.ErrNotManaged) {
		return mcp.NewToolResultText(fmt.Sprintf("Failed to patch: calendar_id %s was not generated by MCP", calendarID)), nil
	}
	if err != nil {
		return upstreamError("patch calendar", err), nil
	}
	return mcp.NewToolResultText("Successfully patched calendar\ncalendar_id: " + calendarID), nil
}

func handleDeleteCalendar(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	client, res := sessionClient(ctx, args, sc)
	if res != nil {
		return res, nil
	}
	calendarID, err := common.RequiredString(args, "calendar_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = client.DeleteCalendar(ctx, calendarID)
	if errors.Is(err, calendar.ErrNotManaged) {
		return mcp.NewToolResultText(fmt.Sprintf("Failed to delete: calendar_id %s was not generated by MCP", calendarID)), nil
	}
	if err != nil {
		return upstreamError("delete calendar", err), nil
	}
	return mcp.NewToolResultText("calendar_id: " + calendarID), nil
}
