package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation is the audit record for one MCP tool call.
//
// UserEmail is PII. LogAttrs replaces it with its domain and only
// AuditLogger configured with IncludePII writes it in full.
type ToolInvocation struct {
	Tool string

	// Session is the hashed session identifier, never the raw value.
	Session   string
	UserEmail string

	// CalendarID is set for tools that address a single calendar.
	CalendarID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing a tool call.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{Tool: tool, StartTime: time.Now()}
}

// WithSession records the hashed session and the user it belongs to.
func (ti *ToolInvocation) WithSession(hashed, email string) *ToolInvocation {
	ti.Session = hashed
	ti.UserEmail = email
	return ti
}

// WithCalendar records the target calendar.
func (ti *ToolInvocation) WithCalendar(calendarID string) *ToolInvocation {
	ti.CalendarID = calendarID
	return ti
}

// WithSpanContext copies trace and span IDs from ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	ti.SpanID = GetSpanID(ctx)
	return ti
}

// Complete stops the clock and records the outcome.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// UserDomain returns the domain of UserEmail.
func (ti *ToolInvocation) UserDomain() string {
	return ExtractUserDomain(ti.UserEmail)
}

// LogAttrs returns the record's attributes. includePII selects between
// the full email and its domain.
func (ti *ToolInvocation) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.UserEmail != "" {
		if includePII {
			attrs = append(attrs, slog.String("user", ti.UserEmail))
		} else {
			attrs = append(attrs, slog.String("user_domain", ti.UserDomain()))
		}
	}
	if ti.Session != "" {
		attrs = append(attrs, slog.String("session", ti.Session))
	}
	if ti.CalendarID != "" {
		attrs = append(attrs, slog.String("calendar_id", ti.CalendarID))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" && includePII {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// LoginEvent is the audit record for one OAuth callback.
type LoginEvent struct {
	Session   string
	UserEmail string
	Result    string
	Duration  time.Duration
}

// AuditLogger writes audit records to a dedicated slog stream.
type AuditLogger struct {
	logger     *slog.Logger
	enabled    bool
	includePII bool
}

// NewAuditLogger returns an enabled audit logger that anonymizes emails.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditConfig{Enabled: true})
}

// NewAuditLoggerWithConfig returns an audit logger configured by cfg.
func NewAuditLoggerWithConfig(logger *slog.Logger, cfg AuditConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With("component", "audit"),
		enabled:    cfg.Enabled,
		includePII: cfg.IncludePII,
	}
}

// LogToolInvocation writes ti. A nil logger is a no-op.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled || ti == nil {
		return
	}
	if ti.Success {
		al.logger.LogAttrs(ctx, slog.LevelInfo, "tool_executed", ti.LogAttrs(al.includePII)...)
		return
	}
	al.logger.LogAttrs(ctx, slog.LevelWarn, "tool_failed", ti.LogAttrs(al.includePII)...)
}

// LogLogin writes the outcome of an OAuth callback.
func (al *AuditLogger) LogLogin(ctx context.Context, ev LoginEvent) {
	if al == nil || !al.enabled {
		return
	}
	attrs := []slog.Attr{
		slog.String("result", ev.Result),
		slog.Duration("duration", ev.Duration),
	}
	if ev.Session != "" {
		attrs = append(attrs, slog.String("session", ev.Session))
	}
	if ev.UserEmail != "" {
		if al.includePII {
			attrs = append(attrs, slog.String("user", ev.UserEmail))
		} else {
			attrs = append(attrs, slog.String("user_domain", ExtractUserDomain(ev.UserEmail)))
		}
	}

	level := slog.LevelInfo
	if ev.Result != OAuthResultSuccess {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "oauth_login", attrs...)
}
