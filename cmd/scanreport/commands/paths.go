package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/query"
)

// ErrInvalidFilter is returned for an unknown issue type or method filter.
var ErrInvalidFilter = errors.New("invalid filter")

// NewPathsCommand creates the paths command.
func NewPathsCommand() *cobra.Command {
	var (
		page     int
		perPage  int
		contains string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the distinct API paths of the loaded report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, observability.ModeCLI, func(ctx context.Context, a *app) error {
				if perPage <= 0 {
					perPage = a.cfg.Query.DefaultPerPage
				}

				return runPaths(ctx, cmd.OutOrStdout(), a, page, perPage, contains, format)
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "paths per page (default from config)")
	cmd.Flags().StringVar(&contains, "contains", "", "only paths containing this substring")
	cmd.Flags().StringVarP(&format, flagFormat, flagFormatShort, formatTable, flagFormatUsage)

	return cmd
}

func runPaths(ctx context.Context, out io.Writer, a *app, page, perPage int, contains, format string) error {
	result, err := a.engine.GetPaths(ctx, page, perPage, query.PathFilter{Contains: contains})
	if err != nil {
		return err
	}

	done, err := writeStructured(out, format, result)
	if done {
		return err
	}

	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"ID", "Path"})

	for _, p := range result.List {
		tbl.AppendRow(table.Row{p.ID, p.Value})
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d of %d paths", result.FilteredItems, result.TotalItems)})
	tbl.Render()

	return nil
}
