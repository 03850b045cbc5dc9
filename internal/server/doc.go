// Package server provides the MCP server context, the streamable HTTP
// transport and the operational endpoints of calendar-mcp.
//
// ServerContext carries the OAuth controller and instrumentation into the
// tool handlers and creates per-session Calendar clients.
//
// HTTPServer mounts three things on one listener:
//   - the streamable MCP endpoint (/mcp)
//   - the OAuth callback (/auth/callback by default)
//   - health probes (/healthz, /readyz, /healthz/detailed)
//
// MetricsServer exposes Prometheus metrics on a separate port.
package server
