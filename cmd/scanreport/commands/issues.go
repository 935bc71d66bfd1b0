package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/query"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// issuesOptions holds the issues command flags.
type issuesOptions struct {
	page    int
	perPage int
	sort    string
	order   string
	path    string
	typ     string
	method  string
	id      int64
	format  string
}

// NewIssuesCommand creates the issues command.
func NewIssuesCommand() *cobra.Command {
	opts := issuesOptions{}

	cmd := &cobra.Command{
		Use:   "issues",
		Short: "Print a page of issues of the loaded report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, observability.ModeCLI, func(ctx context.Context, a *app) error {
				if opts.perPage <= 0 {
					opts.perPage = a.cfg.Query.DefaultPerPage
				}

				if cmd.Flags().Changed("id") {
					return runIssue(ctx, cmd.OutOrStdout(), a, opts)
				}

				return runIssues(ctx, cmd.OutOrStdout(), a, opts)
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.page, "page", 1, "1-based page number")
	flags.IntVar(&opts.perPage, "per-page", 0, "issues per page (default from config)")
	flags.StringVar(&opts.sort, "sort", query.FieldPath, "sort field: path, criticality, method, issueType, path,criticality")
	flags.StringVar(&opts.order, "order", string(query.Ascending), "sort order: asc or desc")
	flags.StringVar(&opts.path, "path", "", "only issues of this exact path")
	flags.StringVar(&opts.typ, "type", "", "only issues of this type")
	flags.StringVar(&opts.method, "method", "", "only issues of this HTTP method")
	flags.Int64Var(&opts.id, "id", 0, "print the single issue with this id")
	flags.StringVarP(&opts.format, flagFormat, flagFormatShort, formatTable, flagFormatUsage)

	return cmd
}

func runIssues(ctx context.Context, out io.Writer, a *app, opts issuesOptions) error {
	filter := query.Filter{Path: opts.path}

	if opts.typ != "" {
		filter.IssueType = report.ParseIssueType(opts.typ)
		if filter.IssueType == report.IssueTypeUnknown {
			return fmt.Errorf("%w: --type %q", ErrInvalidFilter, opts.typ)
		}
	}

	if opts.method != "" {
		filter.Method = report.ParseMethod(opts.method)
		if filter.Method == report.MethodUnknown {
			return fmt.Errorf("%w: --method %q", ErrInvalidFilter, opts.method)
		}
	}

	sort := query.Sort{Field: opts.sort, Order: query.ParseOrder(opts.order)}

	page, err := a.engine.GetIssuesPage(ctx, opts.page, opts.perPage, sort, filter)
	if err != nil {
		return err
	}

	done, err := writeStructured(out, opts.format, page)
	if done {
		return err
	}

	renderIssues(out, page.List)
	fmt.Fprintf(out, "\npage %d of %d, %d matching of %d issues\n",
		max(opts.page, 1), page.TotalPages, page.FilteredItems, page.TotalItems)

	return nil
}

func runIssue(ctx context.Context, out io.Writer, a *app, opts issuesOptions) error {
	issue, err := a.engine.GetIssue(ctx, opts.id)
	if err != nil {
		return fmt.Errorf("issue %d: %w", opts.id, err)
	}

	format := opts.format
	if format == formatTable {
		// A single issue has too many fields for a table.
		format = formatYAML
	}

	_, err = writeStructured(out, format, issue)

	return err
}
