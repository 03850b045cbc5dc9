package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the calendar-mcp application
var rootCmd = &cobra.Command{
	Use:   "calendar-mcp",
	Short: "Google Calendar tools for AI assistants over MCP",
	Long: `calendar-mcp is a Model Context Protocol server that lets an AI assistant
read and manage a user's Google Calendar after the user logs in with Google.

It can run as:
  - An MCP server over stdio or streamable HTTP (serve)
  - An interactive login check from the terminal (login)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calendar-mcp version %s\n" .Version}}`)

	// Without a subcommand, serve over stdio.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
