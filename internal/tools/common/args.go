package common

import (
	"fmt"
	"strings"
)

// ArgSessionID is the argument carrying the login session of a tool call.
const ArgSessionID = "session_id"

// StringArg returns the trimmed string argument name, or "" when it is
// missing or not a string.
func StringArg(args map[string]any, name string) string {
	v, ok := args[name].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// RequiredString returns the string argument name or an error naming it.
func RequiredString(args map[string]any, name string) (string, error) {
	v := StringArg(args, name)
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// BoolArg reads a boolean argument. The strings "true" and "yes" also count
// as true since some clients send every argument as a string.
func BoolArg(args map[string]any, name string) bool {
	switch v := args[name].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "yes"
	}
	return false
}

// SessionID returns the session_id argument.
func SessionID(args map[string]any) string {
	return StringArg(args, ArgSessionID)
}
