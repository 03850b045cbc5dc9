package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calendar-mcp/internal/instrumentation"
	"github.com/teemow/calendar-mcp/internal/oauth"
	"github.com/teemow/calendar-mcp/internal/session"
)

// clearEnv blanks every variable Load reads. Empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CLIENT_ID", "CLIENT_SECRET", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"REDIRECT_URL", "MODE", "TRANSPORT", "HTTP_ADDR", "MCP_BASE_URL",
		"SESSION_STORAGE", "SESSION_DB_PATH", "LOG_LEVEL", "DEBUG",
		"INSTRUMENTATION_ENABLED", "METRICS_EXPORTER", "TRACING_EXPORTER",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACES_SAMPLER_ARG",
		"AUDIT_LOGGING_INCLUDE_PII", "METRICS_DETAILED_LABELS",
	} {
		t.Setenv(name, "")
	}
}

func withCredentials(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("CLIENT_ID", "client")
	t.Setenv("CLIENT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	withCredentials(t)

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "client", cfg.ClientID)
	assert.Equal(t, "secret", cfg.ClientSecret)
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, oauth.DefaultRedirectURL, cfg.RedirectURL)
	assert.Equal(t, oauth.DefaultListenAddr, cfg.CallbackAddr)
	assert.Equal(t, session.BackendMemory, cfg.SessionStorage)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, instrumentation.ExporterPrometheus, cfg.Instrumentation.MetricsExporter)
	assert.True(t, cfg.Instrumentation.Audit.Enabled)
	assert.False(t, cfg.Instrumentation.Audit.IncludePII)

	oc := cfg.OAuth()
	assert.Empty(t, oc.CallbackPath)
	assert.Equal(t, float64(oauth.DefaultCallbackRate), oc.RateLimit.Rate)
}

func TestLoadGoogleAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "g-client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "g-secret")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "g-client", cfg.ClientID)
	assert.Equal(t, "g-secret", cfg.ClientSecret)
}

func TestLoadMode(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		wantTrans    string
		wantRedirect string
	}{
		{
			name:         "stdio",
			env:          map[string]string{"MODE": "stdio"},
			wantTrans:    TransportStdio,
			wantRedirect: oauth.DefaultRedirectURL,
		},
		{
			name:         "http on localhost",
			env:          map[string]string{"MODE": "http"},
			wantTrans:    TransportStreamableHTTP,
			wantRedirect: "http://localhost:5000/auth/callback",
		},
		{
			name:         "http with base url",
			env:          map[string]string{"MODE": "HTTP", "MCP_BASE_URL": "https://cal.example.com/"},
			wantTrans:    TransportStreamableHTTP,
			wantRedirect: "https://cal.example.com/auth/callback",
		},
		{
			name:         "transport wins over mode",
			env:          map[string]string{"MODE": "http", "TRANSPORT": "stdio"},
			wantTrans:    TransportStdio,
			wantRedirect: oauth.DefaultRedirectURL,
		},
		{
			name:         "explicit redirect",
			env:          map[string]string{"MODE": "http", "REDIRECT_URL": "https://cb.example.com/auth/callback"},
			wantTrans:    TransportStreamableHTTP,
			wantRedirect: "https://cb.example.com/auth/callback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(New())
			require.NoError(t, err)
			assert.Equal(t, tt.wantTrans, cfg.Transport)
			assert.Equal(t, tt.wantRedirect, cfg.RedirectURL)
			if tt.wantTrans == TransportStreamableHTTP {
				assert.Equal(t, HTTPCallbackPath, cfg.OAuth().CallbackPath)
			}
		})
	}
}

func TestLoadFlags(t *testing.T) {
	withCredentials(t)
	t.Setenv("MODE", "http")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("transport", "", "")
	fs.String("session-storage", session.BackendMemory, "")
	fs.Bool("debug", false, "")
	fs.String("unrelated", "", "")
	require.NoError(t, fs.Parse([]string{"--transport=stdio", "--session-storage=sqlite", "--debug"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, session.BackendSQLite, cfg.SessionStorage)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestReadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CLIENT_ID=from-file\nCLIENT_SECRET=file-secret\nMODE=http\n"), 0o600))
	t.Setenv("CLIENT_SECRET", "from-env")

	v := New()
	require.NoError(t, ReadEnvFile(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.ClientID)
	assert.Equal(t, "from-env", cfg.ClientSecret)
	assert.Equal(t, TransportStreamableHTTP, cfg.Transport)
}

func TestReadEnvFileMissing(t *testing.T) {
	v := New()
	assert.NoError(t, ReadEnvFile(v, filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, ReadEnvFile(v, ""))
}

func TestLoadInstrumentation(t *testing.T) {
	withCredentials(t)
	t.Setenv("METRICS_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("AUDIT_LOGGING_INCLUDE_PII", "true")
	t.Setenv("METRICS_DETAILED_LABELS", "true")

	cfg, err := Load(New())
	require.NoError(t, err)

	inst := cfg.Instrumentation
	assert.Equal(t, instrumentation.ExporterOTLP, inst.MetricsExporter)
	assert.Equal(t, "collector:4318", inst.OTLPEndpoint)
	assert.InDelta(t, 0.5, inst.TraceSamplingRate, 1e-9)
	assert.True(t, inst.Audit.IncludePII)
	assert.True(t, inst.DetailedLabels)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing client id",
			env:     map[string]string{"CLIENT_ID": ""},
			wantErr: "client ID is required",
		},
		{
			name:    "missing client secret",
			env:     map[string]string{"CLIENT_SECRET": ""},
			wantErr: "client secret is required",
		},
		{
			name:    "bad mode",
			env:     map[string]string{"MODE": "grpc"},
			wantErr: "invalid MODE",
		},
		{
			name:    "bad transport",
			env:     map[string]string{"TRANSPORT": "sse"},
			wantErr: "unsupported transport",
		},
		{
			name:    "bad storage",
			env:     map[string]string{"SESSION_STORAGE": "redis"},
			wantErr: "unsupported session storage",
		},
		{
			name:    "relative base url",
			env:     map[string]string{"MODE": "http", "MCP_BASE_URL": "cal.example.com"},
			wantErr: "base URL",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"LOG_LEVEL": "loud"},
			wantErr: "invalid log level",
		},
		{
			name:    "otlp without endpoint",
			env:     map[string]string{"TRACING_EXPORTER": "otlp"},
			wantErr: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPublicBaseURL(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{HTTPAddr: ":5000"}, "http://localhost:5000"},
		{Config{HTTPAddr: "0.0.0.0:8080"}, "http://localhost:8080"},
		{Config{HTTPAddr: "127.0.0.1:8080"}, "http://127.0.0.1:8080"},
		{Config{HTTPAddr: ":5000", BaseURL: "https://cal.example.com"}, "https://cal.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.PublicBaseURL(), tt.cfg.HTTPAddr)
	}
}
