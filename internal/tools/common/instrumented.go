package common

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/calendar-mcp/internal/instrumentation"
	"github.com/teemow/calendar-mcp/internal/logging"
	"github.com/teemow/calendar-mcp/internal/server"
)

// ToolHandler is the signature of an mcp-go tool handler.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler in a span, records the
// invocation metric and writes an audit record. The session_id and
// calendar_id arguments are attached when present.
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		sid := SessionID(args)
		calendarID := StringArg(args, "calendar_id")

		var hashed string
		var attrs []attribute.KeyValue
		if sid != "" {
			hashed = logging.SessionHash(sid)
			attrs = append(attrs, instrumentation.SessionAttr(hashed))
		}
		attrs = append(attrs, instrumentation.CalendarIDAttr(calendarID)...)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, attrs...)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithCalendar(calendarID)
		var userDomain string
		if sid != "" {
			var email string
			if info, ok := sc.OAuth().UserInfo(ctx, sid); ok {
				email = info.Email()
				userDomain = instrumentation.ExtractUserDomain(email)
			}
			invocation.WithSession(hashed, email)
		}

		result, err := handler(ctx, request)

		failure := err
		if failure == nil {
			failure = resultError(result)
		}
		invocation.Complete(failure == nil, failure)
		if failure != nil {
			instrumentation.SetSpanError(span, failure)
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), userDomain, invocation.Duration)
		sc.AuditLogger().LogToolInvocation(ctx, invocation)

		return result, err
	}
}

// resultError returns the text of an error result, or nil.
func resultError(result *mcp.CallToolResult) error {
	if result == nil || !result.IsError {
		return nil
	}
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok && text.Text != "" {
			return errors.New(text.Text)
		}
	}
	return errors.New("tool returned an error result")
}
