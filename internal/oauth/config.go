package oauth

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/calendar-mcp/internal/google"
)

const (
	// DefaultListenAddr is where the standalone callback listener binds.
	DefaultListenAddr = "127.0.0.1:5000"

	// DefaultCallbackPath is the path of the redirect endpoint.
	DefaultCallbackPath = "/callback"

	// DefaultRedirectURL matches the standalone listener.
	DefaultRedirectURL = "http://localhost:5000/callback"

	// DefaultHTTPTimeout bounds each call to the token and userinfo endpoints.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultCallbackRate and DefaultCallbackBurst limit callbacks per client IP.
	DefaultCallbackRate  = 5
	DefaultCallbackBurst = 10
)

// Config describes the OAuth client and its callback listener.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURL must be registered with the provider and route to the
	// callback handler.
	RedirectURL string

	// Endpoint defaults to Google's endpoints with credentials in the body.
	Endpoint oauth2.Endpoint

	// UserInfoURL defaults to google.UserInfoURL.
	UserInfoURL string

	// Scopes defaults to google.DefaultOAuthScopes.
	Scopes []string

	// HTTPClient is used for the token exchange and the userinfo fetch.
	// Defaults to a client with DefaultHTTPTimeout.
	HTTPClient *http.Client

	// ListenAddr and CallbackPath configure the listener started by
	// Controller.Start.
	ListenAddr   string
	CallbackPath string

	RateLimit RateLimitConfig
}

// RateLimitConfig limits callback requests per client IP. A zero Rate
// disables limiting.
type RateLimitConfig struct {
	Rate  float64
	Burst int

	// TrustProxy reads the client IP from X-Forwarded-For and X-Real-IP.
	TrustProxy bool
}

// Validate checks that the client is usable.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("OAuth client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("OAuth client secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("OAuth redirect URL is required")
	}
	u, err := url.Parse(c.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("redirect URL must be an absolute http(s) URL, got %q", c.RedirectURL)
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Endpoint.AuthURL == "" && c.Endpoint.TokenURL == "" {
		c.Endpoint = google.Endpoint()
	}
	if c.UserInfoURL == "" {
		c.UserInfoURL = google.UserInfoURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), google.DefaultOAuthScopes...)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.CallbackPath == "" {
		c.CallbackPath = DefaultCallbackPath
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = int(c.RateLimit.Rate) + 1
	}
	return c
}
