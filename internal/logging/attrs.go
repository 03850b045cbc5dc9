package logging

import (
	"log/slog"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation   = "operation"
	KeyComponent   = "component"
	KeySession     = "session"
	KeyUserHash    = "user_hash"
	KeyCalendar    = "calendar_id"
	KeyEvent       = "event_id"
	KeyDuration    = "duration"
	KeyStatus      = "status"
	KeyError       = "error"
	KeyTool        = "tool"
	KeySessionKind = "session_state"
)

// Status values for consistent logging.
// They match the instrumentation status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return OrDefault(logger).With(slog.String(KeyOperation, operation))
}

// WithComponent returns a logger with the component attribute set.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return OrDefault(logger).With(slog.String(KeyComponent, component))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return OrDefault(logger).With(slog.String(KeyTool, tool))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Calendar returns a slog attribute for a calendar ID.
func Calendar(calendarID string) slog.Attr {
	return slog.String(KeyCalendar, calendarID)
}

// Event returns a slog attribute for an event ID.
func Event(eventID string) slog.Attr {
	return slog.String(KeyEvent, eventID)
}

// Session returns a slog attribute carrying the hashed session ID.
func Session(sessionID string) slog.Attr {
	return slog.String(KeySession, SessionHash(sessionID))
}

// SessionState returns a slog attribute for a session lifecycle state.
func SessionState(state string) slog.Attr {
	return slog.String(KeySessionKind, state)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that slog omits from output.
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// UserHash returns a slog attribute with the anonymized user email.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}
