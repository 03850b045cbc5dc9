package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/calendar-mcp/internal/calendar"
	"github.com/teemow/calendar-mcp/internal/instrumentation"
	"github.com/teemow/calendar-mcp/internal/logging"
	"github.com/teemow/calendar-mcp/internal/oauth"
)

// ServerContext holds the dependencies shared by every MCP tool.
type ServerContext struct {
	ctx          context.Context
	cancel       context.CancelFunc
	oauth        *oauth.Controller
	metrics      *instrumentation.Metrics
	auditLogger  *instrumentation.AuditLogger
	logger       *slog.Logger
	calendarOpts []calendar.Option
	version      string
	mu           sync.RWMutex
	shutdown     bool
}

// ContextOption configures a ServerContext.
type ContextOption func(*ServerContext)

// WithMetrics sets the recorder used for tool and Calendar API metrics.
func WithMetrics(m *instrumentation.Metrics) ContextOption {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger sets the audit logger for tool invocations.
func WithAuditLogger(al *instrumentation.AuditLogger) ContextOption {
	return func(sc *ServerContext) { sc.auditLogger = al }
}

// WithLogger sets the logger handed to tools and Calendar clients.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithCalendarOptions appends options to every Calendar client the context
// creates. Tests use it to point clients at a fake API.
func WithCalendarOptions(opts ...calendar.Option) ContextOption {
	return func(sc *ServerContext) { sc.calendarOpts = append(sc.calendarOpts, opts...) }
}

// WithVersion records the server version reported by health endpoints.
func WithVersion(version string) ContextOption {
	return func(sc *ServerContext) { sc.version = version }
}

// NewServerContext creates a server context around an OAuth controller.
func NewServerContext(ctx context.Context, controller *oauth.Controller, opts ...ContextOption) (*ServerContext, error) {
	if controller == nil {
		return nil, errors.New("oauth controller is required")
	}
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		oauth:  controller,
	}
	for _, opt := range opts {
		opt(sc)
	}
	sc.logger = logging.OrDefault(sc.logger)
	return sc, nil
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// OAuth returns the login controller.
func (sc *ServerContext) OAuth() *oauth.Controller {
	return sc.oauth
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Version returns the server version.
func (sc *ServerContext) Version() string {
	return sc.version
}

// CalendarClient creates a Calendar client for an authenticated session.
// Clients are not cached because a session's token changes when the user
// logs in again.
func (sc *ServerContext) CalendarClient(ctx context.Context, sessionID string) (*calendar.Client, error) {
	opts := append([]calendar.Option{
		calendar.WithMetrics(sc.metrics),
		calendar.WithLogger(sc.logger),
	}, sc.calendarOpts...)
	return calendar.NewClientForSession(ctx, sc.oauth, sessionID, opts...)
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
