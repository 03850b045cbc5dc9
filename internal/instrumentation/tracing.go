package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for every span in this module.
const TracerName = "github.com/teemow/calendar-mcp"

// Span attribute keys.
const (
	SpanAttrTool       = "mcp.tool"
	SpanAttrSession    = "mcp.session"
	SpanAttrResource   = "calendar.resource"
	SpanAttrOperation  = "calendar.operation"
	SpanAttrCalendarID = "calendar.id"
	SpanAttrEventID    = "calendar.event_id"
	SpanAttrOAuthStep  = "oauth.step"
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartToolSpan starts the server span that wraps an MCP tool call.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, attrs...)
	return tracer().Start(ctx, "tool."+toolName,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartCalendarSpan starts a client span around a Calendar API call.
func StartCalendarSpan(ctx context.Context, resource, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String(SpanAttrResource, resource),
		attribute.String(SpanAttrOperation, operation),
	}, attrs...)
	return tracer().Start(ctx, "calendar."+resource+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartOAuthSpan starts a client span around a call to the OAuth provider.
func StartOAuthSpan(ctx context.Context, step string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(SpanAttrOAuthStep, step)}, attrs...)
	return tracer().Start(ctx, "oauth."+step,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// CalendarIDAttr tags a span with a calendar ID. Empty IDs are skipped.
func CalendarIDAttr(id string) []attribute.KeyValue {
	if id == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String(SpanAttrCalendarID, id)}
}

// EventAttrs tags a span with a calendar and event ID.
func EventAttrs(calendarID, eventID string) []attribute.KeyValue {
	attrs := CalendarIDAttr(calendarID)
	if eventID != "" {
		attrs = append(attrs, attribute.String(SpanAttrEventID, eventID))
	}
	return attrs
}

// SessionAttr tags a span with an already hashed session identifier.
func SessionAttr(hashed string) attribute.KeyValue {
	return attribute.String(SpanAttrSession, hashed)
}

// SetSpanError records err on span. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks span as OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the span ID of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}
