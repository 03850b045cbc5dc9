package common

import (
	"testing"
)

func TestStringArg(t *testing.T) {
	args := map[string]any{
		"name":   "  Team  ",
		"number": 3,
		"empty":  "",
	}
	tests := []struct {
		key  string
		want string
	}{
		{"name", "Team"},
		{"number", ""},
		{"empty", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := StringArg(args, tt.key); got != tt.want {
			t.Errorf("StringArg(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
	if got := StringArg(nil, "name"); got != "" {
		t.Errorf("StringArg(nil) = %q, want empty", got)
	}
}

func TestRequiredString(t *testing.T) {
	v, err := RequiredString(map[string]any{"calendar_id": "primary"}, "calendar_id")
	if err != nil || v != "primary" {
		t.Errorf("RequiredString() = %q, %v", v, err)
	}

	_, err = RequiredString(map[string]any{"calendar_id": "  "}, "calendar_id")
	if err == nil || err.Error() != "calendar_id is required" {
		t.Errorf("RequiredString() error = %v, want %q", err, "calendar_id is required")
	}
}

func TestBoolArg(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"string true", "True", true},
		{"string yes", "yes", true},
		{"string false", "false", false},
		{"number", 1, false},
		{"missing", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{}
			if tt.val != nil {
				args["repeats"] = tt.val
			}
			if got := BoolArg(args, "repeats"); got != tt.want {
				t.Errorf("BoolArg(%v) = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestSessionID(t *testing.T) {
	if got := SessionID(map[string]any{ArgSessionID: "abc"}); got != "abc" {
		t.Errorf("SessionID() = %q, want abc", got)
	}
}
