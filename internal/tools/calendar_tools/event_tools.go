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

const dateTimeFormatNote = `All date-times use the format YYYY-MM-DDTHH:MM:SS without a trailing Z or offset.
Weekdays use RFC 5545 codes: SU, MO, TU, WE, TH, FR, SA.`

func withCalendarID() mcp.ToolOption {
	return mcp.WithString("calendar_id",
		mcp.Required(),
		mcp.Description("Calendar ID from create_calendar or list_calendars"),
	)
}

func withRecurrence() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithBoolean("repeats",
			mcp.Description("Whether the event repeats weekly (default false)"),
		),
		mcp.WithString("repeat_days",
			mcp.Description("Comma-separated weekdays the event repeats on, e.g. TU,TH. Required when repeats is true"),
		),
		mcp.WithString("final_repeat_date",
			mcp.Description("Cutoff date-time for repetitions, read as UTC. It need not fall on an occurrence; use midnight if the time is unknown. Required when repeats is true"),
		),
	}
}

// RegisterEventTools registers the event tools.
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listEventsTool := mcp.NewTool("list_events",
		mcp.WithDescription("List the events of a calendar. Useful to check that inserted events look right."),
		withSessionID(),
		withCalendarID(),
	)
	s.AddTool(listEventsTool, common.InstrumentedToolHandler("list_events", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	insertOpts := []mcp.ToolOption{
		mcp.WithDescription("Insert a new event.\n" + dateTimeFormatNote),
		withSessionID(),
		withCalendarID(),
		mcp.WithString("event_name",
			mcp.Required(),
			mcp.Description("Event title shown in the calendar"),
		),
		mcp.WithString("time_zone",
			mcp.Required(),
			mcp.Description("IANA time zone of the event, e.g. America/New_York. Ask the user if unknown"),
		),
		mcp.WithString("start_date_time",
			mcp.Required(),
			mcp.Description("Start of the event, or of the first occurrence when it repeats"),
		),
		mcp.WithString("end_date_time",
			mcp.Required(),
			mcp.Description("End of the event, or of the first occurrence when it repeats"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
	}
	insertEventTool := mcp.NewTool("insert_event", append(insertOpts, withRecurrence()...)...)
	s.AddTool(insertEventTool, common.InstrumentedToolHandler("insert_event", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleInsertEvent(ctx, request, sc)
		}))

	patchOpts := []mcp.ToolOption{
		mcp.WithDescription("Update an event created through this server. Only the given fields change.\n" + dateTimeFormatNote),
		withSessionID(),
		withCalendarID(),
		mcp.WithString("event_id",
			mcp.Required(),
			mcp.Description("Event ID from list_events or insert_event"),
		),
		mcp.WithString("new_event_name",
			mcp.Description("New event title"),
		),
		mcp.WithString("new_time_zone",
			mcp.Description("IANA time zone. Required with new_start_date_time or new_end_date_time"),
		),
		mcp.WithString("new_start_date_time",
			mcp.Description("New start of the event"),
		),
		mcp.WithString("new_end_date_time",
			mcp.Description("New end of the event"),
		),
		mcp.WithString("new_location",
			mcp.Description("New event location"),
		),
	}
	patchEventTool := mcp.NewTool("patch_event", append(patchOpts, withRecurrence()...)...)
	s.AddTool(patchEventTool, common.InstrumentedToolHandler("patch_event", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handlePatchEvent(ctx, request, sc)
		}))

	deleteEventTool := mcp.NewTool("delete_event",
		mcp.WithDescription("Delete an event created through this server."),
		withSessionID(),
		withCalendarID(),
		mcp.WithString("event_id",
			mcp.Required(),
			mcp.Description("Event ID from list_events or insert_event"),
		),
	)
	s.AddTool(deleteEventTool, common.InstrumentedToolHandler("delete_event", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteEvent(ctx, request, sc)
		}))

	return nil
}

// recurrenceFromArgs returns nil unless repeats is set.
func recurrenceFromArgs(args map[string]any) (*calendar.WeeklyRecurrence, error) {
	if !common.BoolArg(args, "repeats") {
		return nil, nil
	}
	days, err := common.RequiredString(args, "repeat_days")
	if err != nil {
		return nil, err
	}
	return calendar.NewWeeklyRecurrence(days, common.StringArg(args, "final_repeat_date"))
}

func formatEvent(b *strings.Builder, ev calendar.EventSummary) {
	fmt.Fprintf(b, "event_id: %s\n", ev.ID)
	fmt.Fprintf(b, "name: %s\n", orMissing(ev.Summary))
	fmt.Fprintf(b, "description: %s\n", orMissing(ev.Description))
	fmt.Fprintf(b, "start: %s\n", orMissing(ev.Start.String()))
	fmt.Fprintf(b, "end: %s\n", orMissing(ev.End.String()))
	fmt.Fprintf(b, "location: %s\n", orMissing(ev.Location))
	fmt.Fprintf(b, "recurrence_rules: %s\n", orMissing(strings.Join(ev.Recurrence, " ")))
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	client, res := sessionClient(ctx, args, sc)
	if res != nil {
		return res, nil
	}
	calendarID, err := common.RequiredString(args, "calendar_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	events, err := client.ListEvents(ctx, calendarID)
	if err != nil {
		return upstreamError("list events", err), nil
	}
	if len(events) == 0 {
		return mcp.NewToolResultText("No events found."), nil
	}

	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteString("\n")
		}
		formatEvent(&b, ev)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleInsertEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	client, res := sessionClient(ctx, args, sc)
	if res != nil {
		return res, nil
	}

	calendarID, err := common.RequiredString(args, "calendar_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := calendar.EventInput{
		Summary:  common.StringArg(args, "event_name"),
		Location: common.StringArg(args, "location"),
		TimeZone: common.StringArg(args, "time_zone"),
		Start:    common.StringArg(args, "start_date_time"),
		End:      common.StringArg(args, "end_date_time"),
	}
	if in.Recurrence, err = recurrenceFromArgs(args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := in.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ev, err := client.InsertEvent(ctx, calendarID, in)
	if err != nil {
		return upstreamError("insert event", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("event_name: %s\nevent_id: %s", ev.Summary, ev.ID)), nil
}

func handlePatchEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	client, res := sessionClient(ctx, args, sc)
	if res != nil {
		return res, nil
	}

	calendarID, err := common.RequiredString(args, "calendar_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	eventID, err := common.RequiredString(args, "event_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patch := calendar.EventPatch{
		Summary:  common.StringArg(args, "new_event_name"),
		Location: common.StringArg(args, "new_location"),
		TimeZone: common.StringArg(args, "new_time_zone"),
		Start:    common.StringArg(args, "new_start_date_time"),
		End:      common.StringArg(args, "new_end_date_time"),
	}
	if patch.Recurrence, err = recurrenceFromArgs(args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ev, err := client.PatchEvent(ctx, calendarID, eventID, patch)
	switch {
	case errors.Is(err, calendar.ErrNotManaged):
		return mcp.NewToolResultText("Cannot patch an event which is not MCP generated"), nil
	case errors.Is(err, calendar.ErrTimeZoneRequired):
		return mcp.NewToolResultError("Timezone must be specified to update start and end times"), nil
	case err != nil:
		return upstreamError("patch event", err), nil
	}
	return mcp.NewToolResultText("Successfully updated!\nevent_id: " + ev.ID), nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	client, res := sessionClient(ctx, args, sc)
	if res != nil {
		return res, nil
	}

	calendarID, err := common.RequiredString(args, "calendar_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	eventID, err := common.RequiredString(args, "event_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = client.DeleteEvent(ctx, calendarID, eventID)
	if errors.Is(err, calendar.ErrNotManaged) {
		return mcp.NewToolResultText("Cannot delete an event which is not MCP generated"), nil
	}
	if err != nil {
		return upstreamError("delete event", err), nil
	}
	return mcp.NewToolResultText("Successfully deleted!"), nil
}
