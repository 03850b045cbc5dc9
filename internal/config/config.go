package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/calendar-mcp/internal/instrumentation"
	"github.com/teemow/calendar-mcp/internal/logging"
	"github.com/teemow/calendar-mcp/internal/oauth"
	"github.com/teemow/calendar-mcp/internal/session"
)

// Transports accepted by the serve command.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// DefaultHTTPAddr is where streamable-http mode listens.
const DefaultHTTPAddr = ":5000"

// HTTPCallbackPath is the callback route when the callback shares the MCP
// listener.
const HTTPCallbackPath = "/auth/callback"

// DefaultEnvFile is read when present. A missing file is not an error.
const DefaultEnvFile = ".env"

// Configuration keys. Each key is also read from the environment variable
// of the same name in upper case.
const (
	KeyClientID       = "client_id"
	KeyClientSecret   = "client_secret"
	KeyRedirectURL    = "redirect_url"
	KeyCallbackAddr   = "callback_addr"
	KeyMode           = "mode"
	KeyTransport      = "transport"
	KeyHTTPAddr       = "http_addr"
	KeyBaseURL        = "mcp_base_url"
	KeySessionStorage = "session_storage"
	KeySessionDBPath  = "session_db_path"
	KeyMetricsEnabled = "metrics_enabled"
	KeyMetricsAddr    = "metrics_addr"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyDebug          = "debug"
	KeyCallbackRate   = "callback_rate"
	KeyCallbackBurst  = "callback_burst"
	KeyTrustProxy     = "trust_proxy"

	KeyInstrumentationEnabled = "instrumentation_enabled"
	KeyMetricsExporter        = "metrics_exporter"
	KeyTracingExporter        = "tracing_exporter"
	KeyOTLPEndpoint           = "otel_exporter_otlp_endpoint"
	KeyOTLPInsecure           = "otel_exporter_otlp_insecure"
	KeyTraceSamplingRate      = "otel_traces_sampler_arg"
	KeyDetailedLabels         = "metrics_detailed_labels"
	KeyAuditEnabled           = "audit_logging_enabled"
	KeyAuditIncludePII        = "audit_logging_include_pii"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"client-id":       KeyClientID,
	"client-secret":   KeyClientSecret,
	"redirect-url":    KeyRedirectURL,
	"callback-addr":   KeyCallbackAddr,
	"transport":       KeyTransport,
	"http-addr":       KeyHTTPAddr,
	"base-url":        KeyBaseURL,
	"session-storage": KeySessionStorage,
	"session-db":      KeySessionDBPath,
	"metrics":         KeyMetricsEnabled,
	"metrics-addr":    KeyMetricsAddr,
	"log-level":       KeyLogLevel,
	"log-format":      KeyLogFormat,
	"debug":           KeyDebug,
	"callback-rate":   KeyCallbackRate,
	"callback-burst":  KeyCallbackBurst,
	"trust-proxy":     KeyTrustProxy,
	"env-file":        "env_file",
}

// Config is the resolved configuration of one calendar-mcp process.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURL defaults to the standalone listener in stdio mode and to
	// BaseURL plus HTTPCallbackPath in streamable-http mode.
	RedirectURL  string
	CallbackAddr string

	Transport string
	HTTPAddr  string
	BaseURL   string

	SessionStorage string
	SessionDBPath  string

	MetricsEnabled bool
	MetricsAddr    string

	LogLevel  string
	LogFormat string

	CallbackRate  float64
	CallbackBurst int
	TrustProxy    bool

	Instrumentation instrumentation.Config
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(KeyCallbackAddr, oauth.DefaultListenAddr)
	v.SetDefault(KeyHTTPAddr, DefaultHTTPAddr)
	v.SetDefault(KeySessionStorage, session.BackendMemory)
	v.SetDefault(KeySessionDBPath, "calendar-mcp.db")
	v.SetDefault(KeyMetricsEnabled, false)
	v.SetDefault(KeyMetricsAddr, ":9090")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, logging.FormatText)
	v.SetDefault(KeyCallbackRate, oauth.DefaultCallbackRate)
	v.SetDefault(KeyCallbackBurst, oauth.DefaultCallbackBurst)

	defaults := instrumentation.DefaultConfig()
	v.SetDefault(KeyInstrumentationEnabled, defaults.Enabled)
	v.SetDefault(KeyMetricsExporter, defaults.MetricsExporter)
	v.SetDefault(KeyTracingExporter, defaults.TracingExporter)
	v.SetDefault(KeyTraceSamplingRate, defaults.TraceSamplingRate)
	v.SetDefault(KeyDetailedLabels, defaults.DetailedLabels)
	v.SetDefault(KeyAuditEnabled, defaults.Audit.Enabled)
	v.SetDefault(KeyAuditIncludePII, defaults.Audit.IncludePII)
	return v
}

// BindFlags binds the known flags in fs to v. Unknown flags are ignored so
// commands only define what they use.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// ReadEnvFile loads KEY=VALUE pairs from path into v. Real environment
// variables and flags still take precedence. A missing file is ignored.
func ReadEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ClientID:       firstNonEmpty(v.GetString(KeyClientID), v.GetString("google_client_id")),
		ClientSecret:   firstNonEmpty(v.GetString(KeyClientSecret), v.GetString("google_client_secret")),
		RedirectURL:    v.GetString(KeyRedirectURL),
		CallbackAddr:   v.GetString(KeyCallbackAddr),
		Transport:      v.GetString(KeyTransport),
		HTTPAddr:       v.GetString(KeyHTTPAddr),
		BaseURL:        strings.TrimRight(v.GetString(KeyBaseURL), "/"),
		SessionStorage: v.GetString(KeySessionStorage),
		SessionDBPath:  v.GetString(KeySessionDBPath),
		MetricsEnabled: v.GetBool(KeyMetricsEnabled),
		MetricsAddr:    v.GetString(KeyMetricsAddr),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFormat:      v.GetString(KeyLogFormat),
		CallbackRate:   v.GetFloat64(KeyCallbackRate),
		CallbackBurst:  v.GetInt(KeyCallbackBurst),
		TrustProxy:     v.GetBool(KeyTrustProxy),
	}
	if v.GetBool(KeyDebug) {
		cfg.LogLevel = "debug"
	}

	if cfg.Transport == "" {
		transport, err := transportFromMode(v.GetString(KeyMode))
		if err != nil {
			return nil, err
		}
		cfg.Transport = transport
	}

	if cfg.RedirectURL == "" {
		if cfg.Transport == TransportStreamableHTTP {
			cfg.RedirectURL = cfg.PublicBaseURL() + HTTPCallbackPath
		} else {
			cfg.RedirectURL = oauth.DefaultRedirectURL
		}
	}

	inst := instrumentation.DefaultConfig()
	inst.Enabled = v.GetBool(KeyInstrumentationEnabled)
	inst.MetricsExporter = v.GetString(KeyMetricsExporter)
	inst.TracingExporter = v.GetString(KeyTracingExporter)
	inst.OTLPEndpoint = v.GetString(KeyOTLPEndpoint)
	inst.OTLPInsecure = v.GetBool(KeyOTLPInsecure)
	inst.TraceSamplingRate = v.GetFloat64(KeyTraceSamplingRate)
	inst.DetailedLabels = v.GetBool(KeyDetailedLabels)
	inst.Audit.Enabled = v.GetBool(KeyAuditEnabled)
	inst.Audit.IncludePII = v.GetBool(KeyAuditIncludePII)
	cfg.Instrumentation = inst

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport %q, must be one of: %s, %s",
			c.Transport, TransportStdio, TransportStreamableHTTP)
	}

	switch c.SessionStorage {
	case session.BackendMemory:
	case session.BackendSQLite:
		if c.SessionDBPath == "" {
			return fmt.Errorf("session database path is required for %s storage", session.BackendSQLite)
		}
	default:
		return fmt.Errorf("unsupported session storage %q, must be one of: %s, %s",
			c.SessionStorage, session.BackendMemory, session.BackendSQLite)
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("base URL must be an absolute http(s) URL, got %q", c.BaseURL)
		}
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.OAuth().Validate(); err != nil {
		return err
	}
	return c.Instrumentation.Validate()
}

// OAuth returns the controller configuration.
func (c *Config) OAuth() oauth.Config {
	cfg := oauth.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		ListenAddr:   c.CallbackAddr,
		RateLimit: oauth.RateLimitConfig{
			Rate:       c.CallbackRate,
			Burst:      c.CallbackBurst,
			TrustProxy: c.TrustProxy,
		},
	}
	if c.Transport == TransportStreamableHTTP {
		cfg.CallbackPath = HTTPCallbackPath
	}
	return cfg
}

// Logging returns the logger options.
func (c *Config) Logging() logging.Options {
	return logging.Options{Level: c.LogLevel, Format: c.LogFormat}
}

// transportFromMode maps the MODE variable (stdio or http) to a transport.
func transportFromMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "stdio":
		return TransportStdio, nil
	case "http":
		return TransportStreamableHTTP, nil
	default:
		return "", fmt.Errorf("invalid MODE %q, must be stdio or http", mode)
	}
}

// PublicBaseURL returns BaseURL, or a localhost URL derived from HTTPAddr
// when none is configured.
func (c *Config) PublicBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return localBaseURL(c.HTTPAddr)
}

func localBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
