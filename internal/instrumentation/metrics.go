package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod     = "method"
	attrPath       = "path"
	attrStatus     = "status"
	attrTool       = "tool"
	attrResource   = "resource"
	attrOperation  = "operation"
	attrResult     = "result"
	attrStep       = "step"
	attrState      = "state"
	attrFrom       = "from"
	attrTo         = "to"
	attrUserDomain = "user_domain"
)

// Metrics records calendar-mcp observations. The zero value discards
// everything, as does a nil *Metrics.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	calendarOperationsTotal   metric.Int64Counter
	calendarOperationDuration metric.Float64Histogram

	loginStartedTotal metric.Int64Counter
	callbacksTotal    metric.Int64Counter
	upstreamDuration  metric.Float64Histogram

	sessions           metric.Int64UpDownCounter
	sessionTransitions metric.Int64Counter

	detailedLabels bool
}

var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}
	var err error

	if m.httpRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0)); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.toolInvocationsTotal, err = meter.Int64Counter("mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}")); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}
	if m.toolDuration, err = meter.Float64Histogram("mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	if m.calendarOperationsTotal, err = meter.Int64Counter("calendar_api_operations_total",
		metric.WithDescription("Total number of Google Calendar API calls"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_operations_total counter: %w", err)
	}
	if m.calendarOperationDuration, err = meter.Float64Histogram("calendar_api_operation_duration_seconds",
		metric.WithDescription("Google Calendar API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_operation_duration_seconds histogram: %w", err)
	}

	if m.loginStartedTotal, err = meter.Int64Counter("oauth_login_started_total",
		metric.WithDescription("Total number of issued login URLs"),
		metric.WithUnit("{login}")); err != nil {
		return nil, fmt.Errorf("failed to create oauth_login_started_total counter: %w", err)
	}
	if m.callbacksTotal, err = meter.Int64Counter("oauth_callbacks_total",
		metric.WithDescription("Total number of OAuth callbacks by result"),
		metric.WithUnit("{callback}")); err != nil {
		return nil, fmt.Errorf("failed to create oauth_callbacks_total counter: %w", err)
	}
	if m.upstreamDuration, err = meter.Float64Histogram("oauth_upstream_duration_seconds",
		metric.WithDescription("Duration of calls to the OAuth provider in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create oauth_upstream_duration_seconds histogram: %w", err)
	}

	if m.sessions, err = meter.Int64UpDownCounter("oauth_sessions",
		metric.WithDescription("Number of known sessions by state"),
		metric.WithUnit("{session}")); err != nil {
		return nil, fmt.Errorf("failed to create oauth_sessions gauge: %w", err)
	}
	if m.sessionTransitions, err = meter.Int64Counter("session_transitions_total",
		metric.WithDescription("Total number of session state transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, fmt.Errorf("failed to create session_transitions_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records one MCP tool call. userDomain is only
// attached when detailed labels are enabled.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status, userDomain string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	kv := []attribute.KeyValue{
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && userDomain != "" {
		kv = append(kv, attribute.String(attrUserDomain, userDomain))
	}
	attrs := metric.WithAttributes(kv...)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCalendarOperation records one Calendar API call. resource is
// ResourceCalendar or ResourceEvent.
func (m *Metrics) RecordCalendarOperation(ctx context.Context, resource, operation, status string, duration time.Duration) {
	if m == nil || m.calendarOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrResource, resource),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.calendarOperationsTotal.Add(ctx, 1, attrs)
	m.calendarOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLoginStarted counts an issued login URL.
func (m *Metrics) RecordLoginStarted(ctx context.Context) {
	if m == nil || m.loginStartedTotal == nil {
		return
	}
	m.loginStartedTotal.Add(ctx, 1)
}

// RecordOAuthCallback counts a callback by its outcome, one of the
// OAuthResult constants.
func (m *Metrics) RecordOAuthCallback(ctx context.Context, result string) {
	if m == nil || m.callbacksTotal == nil {
		return
	}
	m.callbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthUpstream records the latency of a call to the provider.
// step is StepTokenExchange or StepUserInfo.
func (m *Metrics) RecordOAuthUpstream(ctx context.Context, step, status string, duration time.Duration) {
	if m == nil || m.upstreamDuration == nil {
		return
	}
	m.upstreamDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrStep, step),
		attribute.String(attrStatus, status),
	))
}

// RecordSessionTransition moves one session between the per-state gauges
// and counts the transition. The "none" state has no gauge.
func (m *Metrics) RecordSessionTransition(ctx context.Context, from, to string) {
	if m == nil || m.sessions == nil {
		return
	}
	if from != to {
		if from != sessionStateNone {
			m.sessions.Add(ctx, -1, metric.WithAttributes(attribute.String(attrState, from)))
		}
		if to != sessionStateNone {
			m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrState, to)))
		}
	}
	m.sessionTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrFrom, from),
		attribute.String(attrTo, to),
	))
}
