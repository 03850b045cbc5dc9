package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/calendar-mcp/internal/instrumentation"
	"github.com/teemow/calendar-mcp/internal/oauth"
	"github.com/teemow/calendar-mcp/internal/server"
	"github.com/teemow/calendar-mcp/internal/session"
)

type fixture struct {
	sc     *server.ServerContext
	store  *session.Store
	reader *sdkmetric.ManualReader
	audit  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := session.NewMemoryStore()
	controller, err := oauth.New(oauth.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:5000/callback",
	}, store)
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := instrumentation.NewMetrics(mp.Meter("test"), true)
	require.NoError(t, err)

	var buf bytes.Buffer
	audit := instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	sc, err := server.NewServerContext(context.Background(), controller,
		server.WithMetrics(metrics),
		server.WithAuditLogger(audit))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	return &fixture{sc: sc, store: store, reader: reader, audit: &buf}
}

func (f *fixture) toolCounts(t *testing.T) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mcp_tool_invocations_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				tool, _ := dp.Attributes.Value("tool")
				status, _ := dp.Attributes.Value("status")
				key := tool.AsString() + "/" + status.AsString()
				if domain, ok := dp.Attributes.Value("user_domain"); ok {
					key += "/" + domain.AsString()
				}
				counts[key] += dp.Value
			}
		}
	}
	return counts
}

func (f *fixture) auditRecords(t *testing.T) []map[string]any {
	t.Helper()
	var records []map[string]any
	dec := json.NewDecoder(bytes.NewReader(f.audit.Bytes()))
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		records = append(records, rec)
	}
	return records
}

func request(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	f := newFixture(t)
	called := false
	wrapped := InstrumentedToolHandler("list_calendars", f.sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("ok"), nil
	})

	result, err := wrapped(context.Background(), request(nil))
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, result.IsError)

	assert.Equal(t, int64(1), f.toolCounts(t)["list_calendars/success"])
	records := f.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, "tool_executed", records[0]["msg"])
	assert.Equal(t, "list_calendars", records[0]["tool"])
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	f := newFixture(t)
	wrapped := InstrumentedToolHandler("delete_event", f.sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("event_id is required"), nil
	})

	result, err := wrapped(context.Background(), request(map[string]any{"calendar_id": "primary"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	assert.Equal(t, int64(1), f.toolCounts(t)["delete_event/error"])
	records := f.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, "tool_failed", records[0]["msg"])
	assert.Equal(t, "event_id is required", records[0]["error"])
	assert.Equal(t, "primary", records[0]["calendar_id"])
}

func TestInstrumentedToolHandler_GoError(t *testing.T) {
	f := newFixture(t)
	expected := errors.New("boom")
	wrapped := InstrumentedToolHandler("get_user", f.sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expected
	})

	_, err := wrapped(context.Background(), request(nil))
	assert.Equal(t, expected, err)
	assert.Equal(t, int64(1), f.toolCounts(t)["get_user/error"])
}

func TestInstrumentedToolHandler_SessionIsHashedAndUserAnonymized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid, err := f.store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.MarkAuthenticated(ctx, sid, session.UserInfo{"email": "a@Example.com"}, "T1"))

	wrapped := InstrumentedToolHandler("list_events", f.sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	_, err = wrapped(ctx, request(map[string]any{ArgSessionID: sid}))
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.toolCounts(t)["list_events/success/example.com"])

	records := f.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, "example.com", records[0]["user_domain"])
	assert.NotContains(t, f.audit.String(), sid)
	assert.NotContains(t, f.audit.String(), "a@Example.com")
}

func TestInstrumentedToolHandler_NoInstrumentation(t *testing.T) {
	controller, err := oauth.New(oauth.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:5000/callback",
	}, session.NewMemoryStore())
	require.NoError(t, err)
	sc, err := server.NewServerContext(context.Background(), controller)
	require.NoError(t, err)

	wrapped := InstrumentedToolHandler("get_url", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	result, err := wrapped(context.Background(), request(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}
