package logging

import (
	"strings"
	"testing"
)

func TestAnonymizeEmail(t *testing.T) {
	if got := AnonymizeEmail(""); got != "" {
		t.Errorf("AnonymizeEmail(\"\") = %q, want empty", got)
	}

	a := AnonymizeEmail("a@b.com")
	b := AnonymizeEmail("a@b.com")
	c := AnonymizeEmail("c@b.com")

	if a != b {
		t.Error("AnonymizeEmail should be deterministic")
	}
	if a == c {
		t.Error("different emails should hash differently")
	}
	if strings.Contains(a, "a@b.com") {
		t.Error("hash must not contain the email")
	}
	if !strings.HasPrefix(a, "user:") {
		t.Errorf("AnonymizeEmail() = %q, want user: prefix", a)
	}
}

func TestSessionHash(t *testing.T) {
	if got := SessionHash(""); got != "<none>" {
		t.Errorf("SessionHash(\"\") = %q", got)
	}
	if SessionHash("abc") != SessionHash("abc") {
		t.Error("SessionHash should be deterministic")
	}
	if SessionHash("abc") == SessionHash("abd") {
		t.Error("different sessions should hash differently")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{token: "", want: "<empty>"},
		{token: "T1", want: "[token:2 chars]"},
		{token: "ya29.a0AfH6SMB", want: "[token:14 chars]"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.token); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}
