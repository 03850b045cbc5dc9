// Package instrumentation wires OpenTelemetry metrics and tracing into
// calendar-mcp.
//
// A Provider owns the meter and tracer providers. Metrics are exported
// through a Prometheus registry owned by the provider (served by the
// dedicated metrics server), through OTLP over HTTP, or to stdout for
// local debugging.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//   - calendar_api_operations_total, calendar_api_operation_duration_seconds
//   - oauth_login_started_total
//   - oauth_callbacks_total (by result)
//   - oauth_upstream_duration_seconds (token exchange and userinfo fetch)
//   - oauth_sessions (by state) and session_transitions_total
//
// Labels are kept low-cardinality. Calendar and event identifiers only
// appear on spans, never on metrics.
//
// # Audit
//
// AuditLogger writes one structured record per tool invocation and per
// completed login callback. Email addresses are reduced to their domain
// unless the audit configuration explicitly includes PII.
package instrumentation
