package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calendar-mcp/internal/oauth"
	"github.com/teemow/calendar-mcp/internal/session"
)

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{
			name:    "valid HTTPS URL",
			baseURL: "https://mcp.example.com",
			wantErr: false,
		},
		{
			name:    "valid HTTP localhost",
			baseURL: "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP 127.0.0.1",
			baseURL: "http://127.0.0.1:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP ::1 (IPv6 loopback)",
			baseURL: "http://[::1]:8080",
			wantErr: false,
		},
		{
			name:    "invalid HTTP non-localhost",
			baseURL: "http://mcp.example.com",
			wantErr: true,
		},
		{
			name:    "invalid HTTP with localhost substring",
			baseURL: "http://localhost.example.com",
			wantErr: true,
		},
		{
			name:    "invalid HTTP with 127.0.0.1 in domain",
			baseURL: "http://127.0.0.1.example.com",
			wantErr: true,
		},
		{
			name:    "empty URL",
			baseURL: "",
			wantErr: true,
		},
		{
			name:    "invalid URL format",
			baseURL: "not a url",
			wantErr: true,
		},
		{
			name:    "invalid scheme",
			baseURL: "ftp://example.com",
			wantErr: true,
		},
		{
			name:    "HTTPS with path",
			baseURL: "https://mcp.example.com/api",
			wantErr: false,
		},
		{
			name:    "HTTPS with port",
			baseURL: "https://mcp.example.com:8443",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHTTPSRequirement() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func newTestServerContext(t *testing.T, cfg oauth.Config) *ServerContext {
	t.Helper()
	if cfg.ClientID == "" {
		cfg.ClientID = "client"
		cfg.ClientSecret = "secret"
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/auth/callback"
		cfg.CallbackPath = "/auth/callback"
	}
	controller, err := oauth.New(cfg, session.NewMemoryStore())
	require.NoError(t, err)

	sc, err := NewServerContext(context.Background(), controller, WithVersion("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestNewHTTPServer(t *testing.T) {
	sc := newTestServerContext(t, oauth.Config{})
	mcp := mcpserver.NewMCPServer("test", "0.0.0")

	_, err := NewHTTPServer(nil, sc, "http://localhost:8080", nil)
	assert.Error(t, err)

	_, err = NewHTTPServer(mcp, nil, "http://localhost:8080", nil)
	assert.Error(t, err)

	_, err = NewHTTPServer(mcp, sc, "http://mcp.example.com", nil)
	assert.Error(t, err)

	s, err := NewHTTPServer(mcp, sc, "https://mcp.example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://mcp.example.com", s.BaseURL())
}

func TestHTTPServerRoutes(t *testing.T) {
	sc := newTestServerContext(t, oauth.Config{})
	s, err := NewHTTPServer(mcpserver.NewMCPServer("test", "0.0.0"), sc, "http://localhost:8080", nil)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("callback without params is 404", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/auth/callback")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	})

	t.Run("health probes", func(t *testing.T) {
		for _, path := range []string{"/healthz", "/readyz", "/healthz/detailed"} {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		}
	})

	t.Run("mcp endpoint is mounted", func(t *testing.T) {
		resp, err := http.Post(ts.URL+DefaultMCPEndpoint, "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHTTPServerShutdown(t *testing.T) {
	sc := newTestServerContext(t, oauth.Config{})
	health := NewHealthChecker(sc)
	s, err := NewHTTPServer(mcpserver.NewMCPServer("test", "0.0.0"), sc, "http://localhost:8080", health)
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.False(t, health.IsReady())
	assert.True(t, errors.Is(s.Start("127.0.0.1:0"), http.ErrServerClosed))
}
