package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scanreport/internal/mcp"
	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the report store as tools that AI agents can discover
and invoke:
  - report_load: Load a report file into the store
  - report_issues_page: Page of issues with sorting and filters
  - report_issue: One issue by id
  - report_summary: Report summary and operations
  - report_paths: Page of distinct API paths`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, observability.ModeMCP, func(ctx context.Context, a *app) error {
				srv := mcp.NewServer(mcp.ServerDeps{
					Manager:        a.manager,
					Engine:         a.engine,
					Logger:         a.providers.Logger,
					Metrics:        a.red,
					Tracer:         a.providers.Tracer,
					DefaultPerPage: a.cfg.Query.DefaultPerPage,
					FragmentSize:   a.cfg.Parser.FragmentSize,
				})

				return srv.Run(ctx)
			})
		},
	}
}
