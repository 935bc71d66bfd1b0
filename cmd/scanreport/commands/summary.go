package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/query"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// NewSummaryCommand creates the summary command.
func NewSummaryCommand() *cobra.Command {
	var (
		format      string
		skippedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the summary and operations of the loaded report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, observability.ModeCLI, func(ctx context.Context, a *app) error {
				return runSummary(ctx, cmd.OutOrStdout(), a, format, skippedOnly)
			})
		},
	}

	cmd.Flags().StringVarP(&format, flagFormat, flagFormatShort, formatTable, flagFormatUsage)
	cmd.Flags().BoolVar(&skippedOnly, "skipped", false, "list only the skipped operations")

	return cmd
}

func runSummary(ctx context.Context, out io.Writer, a *app, format string, skippedOnly bool) error {
	rep, err := a.engine.GetReport(ctx)
	if err != nil {
		return err
	}

	if skippedOnly {
		rep.Operations, err = a.engine.GetSkippedOperations(ctx)
		if err != nil {
			return err
		}
	}

	done, err := writeStructured(out, format, rep)
	if done {
		return err
	}

	printSummary(out, rep)

	return nil
}

func printSummary(out io.Writer, rep query.Report) {
	md := rep.Summary

	fmt.Fprintf(out, "Task %s, scan %s, report %s, engine %s\n",
		md.TaskID, rep.ScanVersion, md.ReportVersion, versionText(md.EngineVersion))
	fmt.Fprintf(out, "State %s (exit code %d), %s requests, %s issues, full report: %t\n",
		md.State, md.ExitCode, humanize.Comma(md.RequestsCount), humanize.Comma(md.IssuesCount), md.IsFullReport)

	if md.Date != "" {
		fmt.Fprintf(out, "Date %s\n", md.Date)
	}

	if len(rep.Operations) == 0 {
		return
	}

	fmt.Fprintln(out)

	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"ID", "Operation", "Method", "Path", "Requests", "Happy path", "Skipped"})

	for _, op := range rep.Operations {
		skipped := ""
		if op.Skipped {
			skipped = op.SkipReason
			if skipped == "" {
				skipped = "yes"
			}
		}

		tbl.AppendRow(table.Row{
			op.ID, op.OperationID, op.Method.String(), op.Path,
			humanize.Comma(op.TotalRequestCount), op.HappyPath.Key, skipped,
		})
	}

	tbl.Render()
}

// versionText prints a version the report never set as "unknown".
func versionText(v report.Version) string {
	if v.IsZero() {
		return "unknown"
	}

	return v.String()
}
