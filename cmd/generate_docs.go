package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calendar-mcp/internal/oauth"
	"github.com/teemow/calendar-mcp/internal/server"
	"github.com/teemow/calendar-mcp/internal/session"
	"github.com/teemow/calendar-mcp/internal/tools/calendar_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
The registered tools are introspected, so the output always matches the
actual tool definitions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// registeredTools returns every tool the server exposes. The OAuth client
// is a placeholder; nothing is called.
func registeredTools() ([]mcp.Tool, error) {
	controller, err := oauth.New(oauth.Config{
		ClientID:     "docs",
		ClientSecret: "docs",
		RedirectURL:  oauth.DefaultRedirectURL,
	}, session.NewMemoryStore())
	if err != nil {
		return nil, err
	}
	serverContext, err := server.NewServerContext(context.Background(), controller)
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	mcpSrv := mcpserver.NewMCPServer("calendar-mcp", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, serverContext); err != nil {
		return nil, err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}
	return tools, nil
}

func runGenerateDocs(outputFile string) error {
	tools, err := registeredTools()
	if err != nil {
		return err
	}
	markdown := generateToolsMarkdown(tools)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document lists every tool calendar-mcp exposes over MCP.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	toolsByCategory := groupToolsByCategory(tools)

	sb.WriteString("## Table of Contents\n\n")
	categories := slices.Sorted(maps.Keys(toolsByCategory))

	for _, category := range categories {
		anchor := strings.ToLower(strings.ReplaceAll(category, " ", "-"))
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, anchor)
	}
	sb.WriteString("\n")

	sb.WriteString("## Sessions\n\n")
	sb.WriteString("Call `get_url` first. It returns a Google login URL for the user and a `session_id`.\n")
	sb.WriteString("Every other tool takes that `session_id`. Calendar tools answer `User has not logged in yet` until the login completes.\n")
	sb.WriteString("Calendars and events created through these tools are marked, and only marked items can be patched or deleted.\n\n")

	for _, category := range categories {
		categoryTools := toolsByCategory[category]
		slices.SortFunc(categoryTools, func(a, b mcp.Tool) int {
			return strings.Compare(a.Name, b.Name)
		})

		fmt.Fprintf(&sb, "## %s\n\n", category)

		for _, tool := range categoryTools {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func groupToolsByCategory(tools []mcp.Tool) map[string][]mcp.Tool {
	categories := make(map[string][]mcp.Tool)

	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		categories[category] = append(categories[category], tool)
	}

	return categories
}

func getCategoryFromToolName(name string) string {
	switch {
	case name == "get_url" || name == "verify_login" || name == "get_user":
		return "Session Tools"
	case strings.HasSuffix(name, "_calendar") || strings.HasSuffix(name, "_calendars"):
		return "Calendar Tools"
	case strings.HasSuffix(name, "_event") || strings.HasSuffix(name, "_events"):
		return "Event Tools"
	default:
		return "Other"
	}
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)

	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	if len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("**Arguments:**\n")

		for _, name := range slices.Sorted(maps.Keys(tool.InputSchema.Properties)) {
			prop := tool.InputSchema.Properties[name]
			requiredStr := "optional"
			if slices.Contains(tool.InputSchema.Required, name) {
				requiredStr = "required"
			}

			propMap, ok := prop.(map[string]any)
			if !ok {
				continue
			}

			propType := getPropertyType(propMap)

			fmt.Fprintf(&sb, "- `%s` (%s): ", name, requiredStr)

			if desc, ok := propMap["description"].(string); ok {
				sb.WriteString(desc)
			} else {
				fmt.Fprintf(&sb, "%s parameter", propType)
			}

			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
