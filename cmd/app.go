package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teemow/calendar-mcp/internal/config"
	"github.com/teemow/calendar-mcp/internal/instrumentation"
	"github.com/teemow/calendar-mcp/internal/logging"
	"github.com/teemow/calendar-mcp/internal/oauth"
	"github.com/teemow/calendar-mcp/internal/server"
	"github.com/teemow/calendar-mcp/internal/session"
)

// app holds the components shared by serve and login.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	provider   *instrumentation.Provider
	store      *session.Store
	controller *oauth.Controller
	sc         *server.ServerContext
}

// addOAuthFlags registers the flags every command that talks to Google needs.
func addOAuthFlags(fs *pflag.FlagSet) {
	fs.String("client-id", "", "Google OAuth client ID (or CLIENT_ID / GOOGLE_CLIENT_ID)")
	fs.String("client-secret", "", "Google OAuth client secret (or CLIENT_SECRET / GOOGLE_CLIENT_SECRET)")
	fs.String("redirect-url", "", "OAuth redirect URL registered with Google (default depends on transport)")
	fs.String("callback-addr", oauth.DefaultListenAddr, "Address of the standalone OAuth callback listener")
	fs.Float64("callback-rate", oauth.DefaultCallbackRate, "Callback requests per second allowed per client IP (0 disables limiting)")
	fs.Int("callback-burst", oauth.DefaultCallbackBurst, "Callback burst size per client IP")
	fs.Bool("trust-proxy", false, "Read the client IP from X-Forwarded-For and X-Real-IP")
	fs.String("session-storage", session.BackendMemory, "Session storage backend: memory or sqlite")
	fs.String("session-db", "calendar-mcp.db", "SQLite database path when --session-storage=sqlite")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", logging.FormatText, "Log format: text or json")
	fs.Bool("debug", false, "Enable debug logging")
	fs.String("env-file", config.DefaultEnvFile, "Optional file of KEY=VALUE settings")
}

// loadConfig resolves the configuration for cmd from its flags, the
// environment and the env file. overrides win over every source.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.ReadEnvFile(v, envFile); err != nil {
		return nil, err
	}
	for key, value := range overrides {
		v.Set(key, value)
	}
	return config.Load(v)
}

// newApp wires logging, telemetry, the session store, the OAuth controller
// and the server context. Callers must call close.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	instCfg := cfg.Instrumentation
	instCfg.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLoggerWithConfig(logger, instCfg.Audit)

	a := &app{cfg: cfg, logger: logger, provider: provider}

	backend, err := session.OpenBackend(ctx, cfg.SessionStorage, cfg.SessionDBPath, logger)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}
	a.store = session.NewStore(backend,
		session.WithLogger(logger),
		session.WithTransitionRecorder(metrics))

	a.controller, err = oauth.New(cfg.OAuth(), a.store,
		oauth.WithLogger(logger),
		oauth.WithMetrics(metrics),
		oauth.WithAuditLogger(audit))
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("failed to create OAuth controller: %w", err)
	}

	a.sc, err = server.NewServerContext(ctx, a.controller,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithAuditLogger(audit),
		server.WithVersion(version))
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	return a, nil
}

// close releases everything newApp created, in reverse order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.sc != nil {
		if err := a.sc.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.controller != nil {
		if err := a.controller.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop callback listener: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session storage: %w", err))
		}
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
