package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/teemow/calendar-mcp/internal/calendar"
	"github.com/teemow/calendar-mcp/internal/config"
	"github.com/teemow/calendar-mcp/internal/logging"
	"github.com/teemow/calendar-mcp/internal/oauth"
	"github.com/teemow/calendar-mcp/internal/server"
)

const loginPollInterval = 500 * time.Millisecond

// errLoginTimeout is returned when the user does not finish the login in time.
var errLoginTimeout = errors.New("timed out waiting for login")

func newLoginCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with Google and list your calendars",
		Long: `Start the OAuth callback listener, print a Google login URL and wait until
the login in the browser completes. On success the user's calendars are listed.

Useful to check the OAuth client configuration before wiring the server into
an AI assistant.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, timeout)
		},
	}

	addOAuthFlags(cmd.Flags())
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the login to complete")

	return cmd
}

func runLogin(cmd *cobra.Command, timeout time.Duration) error {
	cfg, err := loadConfig(cmd, map[string]any{config.KeyTransport: config.TransportStdio})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownWithTimeout(a.close); err != nil {
			a.logger.Error("shutdown failed", logging.Err(err))
		}
	}()

	if err := a.controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start OAuth callback listener: %w", err)
	}

	url, sid, err := a.controller.BeginLogin(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Open this URL in your browser to log in:\n\n  %s\n\n", url)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " Waiting for Google login..."
	s.Start()
	err = waitForLogin(ctx, a.controller, sid, timeout, loginPollInterval)
	s.Stop()
	if err != nil {
		return err
	}

	info, _ := a.controller.UserInfo(ctx, sid)
	fmt.Fprintf(out, "Logged in as %s (%s)\n\n", info.Name(), info.Email())

	return listCalendars(ctx, out, a.sc, sid)
}

// waitForLogin polls until sid is authenticated, ctx ends or timeout passes.
func waitForLogin(ctx context.Context, controller *oauth.Controller, sid string, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if controller.IsAuthenticated(ctx, sid) {
			return nil
		}
		if err := controller.Err(); err != nil {
			return fmt.Errorf("OAuth callback listener stopped: %w", err)
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errLoginTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func listCalendars(ctx context.Context, w io.Writer, sc *server.ServerContext, sid string) error {
	client, err := sc.CalendarClient(ctx, sid)
	if err != nil {
		return err
	}
	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return fmt.Errorf("failed to list calendars: %w", err)
	}
	renderCalendars(w, calendars)
	return nil
}

// renderCalendars writes calendars as a table.
func renderCalendars(w io.Writer, calendars []calendar.CalendarInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "ID", "Access", "Time zone", "Managed"})
	for _, cal := range calendars {
		name := cal.Summary
		if cal.Primary {
			name += " (primary)"
		}
		managed := ""
		if cal.Managed() {
			managed = "yes"
		}
		t.AppendRow(table.Row{name, cal.ID, cal.AccessRole, cal.TimeZone, managed})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(calendars)})
	t.Render()
}
