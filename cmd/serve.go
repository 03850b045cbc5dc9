package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/calendar-mcp/internal/config"
	"github.com/teemow/calendar-mcp/internal/logging"
	"github.com/teemow/calendar-mcp/internal/server"
	"github.com/teemow/calendar-mcp/internal/tools/calendar_tools"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server that provides Google Calendar
tools to AI assistants.

Supports two transport types:
  - stdio: Standard input/output. The OAuth callback is served by a
    separate listener on --callback-addr (default 127.0.0.1:5000).
  - streamable-http: MCP on /mcp and the OAuth callback on /auth/callback,
    both on --http-addr.

MODE=stdio or MODE=http selects the transport when --transport is not given.

OAuth Configuration:
  --client-id and --client-secret flags
  OR CLIENT_ID and CLIENT_SECRET env vars (GOOGLE_ prefixed names also work)
  The redirect URL must be registered with Google. It defaults to
  http://localhost:5000/callback in stdio mode and to <base-url>/auth/callback
  in streamable-http mode.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	fs := cmd.Flags()
	addOAuthFlags(fs)
	fs.String("transport", "", "Transport type: stdio or streamable-http (default stdio)")
	fs.String("http-addr", config.DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	fs.String("base-url", "", "Public base URL of the server (or MCP_BASE_URL); required for deployed instances")
	fs.Bool("metrics", false, "Serve Prometheus metrics on a dedicated port")
	fs.String("metrics-addr", server.DefaultMetricsAddr, "Metrics server address")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			a.logger.Error("shutdown failed", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("calendar-mcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
	)
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, a.sc); err != nil {
		return err
	}

	health := server.NewHealthChecker(a.sc)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsEnabled {
		metricsConfig := server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: a.provider,
		}
		if cfg.Transport == config.TransportStdio {
			metricsConfig.Health = health
		}
		metricsServer, err := server.NewMetricsServer(metricsConfig)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		g.Go(func() error {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdownWithTimeout(metricsServer.Shutdown)
		})
	}

	switch cfg.Transport {
	case config.TransportStdio:
		runStdio(gctx, cancel, g, mcpSrv, a, health)
	case config.TransportStreamableHTTP:
		if err := runStreamableHTTP(gctx, g, mcpSrv, a, health); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", cfg.Transport)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runStdio serves MCP on stdin/stdout and the OAuth callback on its own
// listener. Closing stdin calls stopAll.
func runStdio(ctx context.Context, stopAll context.CancelFunc, g *errgroup.Group, mcpSrv *mcpserver.MCPServer, a *app, health *server.HealthChecker) {
	health.RequireCallbackListener(true)

	g.Go(func() error {
		if err := a.controller.Start(ctx); err != nil {
			return fmt.Errorf("failed to start OAuth callback listener: %w", err)
		}
		<-ctx.Done()
		return shutdownWithTimeout(a.controller.Shutdown)
	})

	g.Go(func() error {
		defer stopAll()
		stdio := mcpserver.NewStdioServer(mcpSrv)
		stdio.SetErrorLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelError))
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server stopped with error: %w", err)
		}
		return nil
	})
}

// runStreamableHTTP serves MCP, the OAuth callback and the health probes on
// one HTTP listener.
func runStreamableHTTP(ctx context.Context, g *errgroup.Group, mcpSrv *mcpserver.MCPServer, a *app, health *server.HealthChecker) error {
	cfg := a.cfg
	baseURL := cfg.PublicBaseURL()
	if cfg.BaseURL == "" {
		a.logger.Warn("no base URL configured, using auto-detected; set --base-url or MCP_BASE_URL for deployed instances",
			slog.String("base_url", baseURL))
	}

	httpServer, err := server.NewHTTPServer(mcpSrv, a.sc, baseURL, health)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	printBanner()

	g.Go(func() error {
		if err := httpServer.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return shutdownWithTimeout(httpServer.Shutdown)
	})
	return nil
}

func shutdownWithTimeout(shutdown func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	return shutdown(ctx)
}

// printBanner writes the startup banner to stderr.
func printBanner() {
	banner := figure.NewFigure("calendar-mcp", "small", true)
	fmt.Fprintln(os.Stderr, banner.String())
	fmt.Fprintf(os.Stderr, "version %s\n\n", version)
}
