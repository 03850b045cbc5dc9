package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// DefaultMCPEndpoint is the path of the streamable HTTP transport.
const DefaultMCPEndpoint = "/mcp"

const (
	httpReadHeaderTimeout = 10 * time.Second
	httpIdleTimeout       = 120 * time.Second
)

// HTTPServer serves the MCP transport, the OAuth callback and the health
// probes on one listener.
type HTTPServer struct {
	mcpServer *mcpserver.MCPServer
	sc        *ServerContext
	health    *HealthChecker
	baseURL   string

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// NewHTTPServer validates baseURL, the public URL clients and the OAuth
// provider reach the server at.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, sc *ServerContext, baseURL string, health *HealthChecker) (*HTTPServer, error) {
	if mcpServer == nil {
		return nil, errors.New("mcp server is required")
	}
	if sc == nil {
		return nil, errors.New("server context is required")
	}
	if err := validateHTTPSRequirement(baseURL); err != nil {
		return nil, err
	}
	if health == nil {
		health = NewHealthChecker(sc)
	}
	return &HTTPServer{
		mcpServer: mcpServer,
		sc:        sc,
		health:    health,
		baseURL:   baseURL,
	}, nil
}

// BaseURL returns the validated public URL.
func (s *HTTPServer) BaseURL() string {
	return s.baseURL
}

// Handler returns the server's routes.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(DefaultMCPEndpoint),
	)
	mux.Handle(DefaultMCPEndpoint, s.sc.Metrics().HTTPMiddleware(DefaultMCPEndpoint, streamable))

	controller := s.sc.OAuth()
	mux.Handle(controller.CallbackPath(), controller.Handler())

	s.health.RegisterHealthEndpoints(mux)

	return securityHeaders(mux)
}

// Start serves on addr until Shutdown is called. It blocks and returns
// http.ErrServerClosed after a clean shutdown.
func (s *HTTPServer) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		IdleTimeout:       httpIdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.sc.Logger().Info("starting HTTP server",
		slog.String("addr", addr),
		slog.String("mcp_endpoint", DefaultMCPEndpoint),
		slog.String("callback_path", s.sc.OAuth().CallbackPath()))
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for active ones until ctx
// expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()

	s.health.SetReady(false)
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// validateHTTPSRequirement requires https for public URLs. Plain http is
// accepted for loopback hosts only.
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("base URL must use HTTPS outside of localhost (got: %s)", baseURL)
		}
		return nil
	default:
		return fmt.Errorf("invalid URL scheme %q: must be http (localhost only) or https", u.Scheme)
	}
}
