// Package commands implements the scanreport CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scanreport/pkg/version"
)

// Persistent flag names.
const (
	flagConfig  = "config"
	flagBackend = "store-backend"
	flagStore   = "store"
	flagVerbose = "verbose"
)

// NewRootCommand creates the scanreport command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scanreport",
		Short: "Scanreport - load and query API conformance scan reports",
		Long: `Scanreport streams large API scan reports into a local store and answers
paginated, sorted and filtered queries over their issues.

Commands:
  load      Load a report into the store
  issues    Print a page of issues
  paths     Print the distinct API paths
  summary   Print the report summary
  serve     Serve the HTTP API
  mcp       Serve MCP tools on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "config file (default: .scanreport.yaml in CWD or $HOME)")
	flags.String(flagBackend, "", "store backend: memory or sqlite (overrides config)")
	flags.String(flagStore, "", "sqlite store path (overrides config)")
	flags.BoolP(flagVerbose, "v", false, "debug logging")

	rootCmd.AddCommand(
		NewLoadCommand(),
		NewIssuesCommand(),
		NewPathsCommand(),
		NewSummaryCommand(),
		NewServeCommand(),
		NewMCPCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scanreport %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
