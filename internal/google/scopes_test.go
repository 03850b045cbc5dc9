package google

import (
	"testing"

	"golang.org/x/oauth2"
)

func TestDefaultOAuthScopes(t *testing.T) {
	want := map[string]bool{
		ScopeProfile:  true,
		ScopeEmail:    true,
		ScopeCalendar: true,
		ScopeOpenID:   true,
	}
	if len(DefaultOAuthScopes) != len(want) {
		t.Fatalf("DefaultOAuthScopes has %d entries, want %d", len(DefaultOAuthScopes), len(want))
	}
	for _, s := range DefaultOAuthScopes {
		if !want[s] {
			t.Errorf("unexpected scope %q", s)
		}
	}
}

func TestEndpoint(t *testing.T) {
	ep := Endpoint()
	if ep.AuthURL != "https://accounts.google.com/o/oauth2/auth" {
		t.Errorf("AuthURL = %q", ep.AuthURL)
	}
	if ep.TokenURL != "https://oauth2.googleapis.com/token" {
		t.Errorf("TokenURL = %q", ep.TokenURL)
	}
	if ep.AuthStyle != oauth2.AuthStyleInParams {
		t.Errorf("AuthStyle = %v, want AuthStyleInParams", ep.AuthStyle)
	}
}
