package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/session"
)

const flagFragmentSize = "fragment-size"

// stdinArg selects standard input as the report source.
const stdinArg = "-"

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	var (
		fragmentSize string
		format       string
	)

	cmd := &cobra.Command{
		Use:   "load <file|->",
		Short: "Load a scan report into the store",
		Long: `Stream a scan report JSON document into the configured store.

The previous report is replaced. The document is read in fragments of
--fragment-size bytes (e.g. 64KiB, 1MB) and never held in memory as a whole.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, observability.ModeCLI, func(ctx context.Context, a *app) error {
				size := a.cfg.Parser.FragmentSize

				if fragmentSize != "" {
					parsed, err := humanize.ParseBytes(fragmentSize)
					if err != nil {
						return fmt.Errorf("parse --%s: %w", flagFragmentSize, err)
					}

					size = int(parsed)
				}

				return runLoad(ctx, cmd.OutOrStdout(), cmd.InOrStdin(), a, args[0], size, format)
			})
		},
	}

	cmd.Flags().StringVar(&fragmentSize, flagFragmentSize, "", "read size per fragment (default from config)")
	cmd.Flags().StringVarP(&format, flagFormat, flagFormatShort, formatTable, flagFormatUsage)

	return cmd
}

func runLoad(ctx context.Context, out io.Writer, stdin io.Reader, a *app, source string, size int, format string) error {
	in := stdin

	if source != stdinArg {
		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("open report: %w", err)
		}
		defer f.Close()

		in = f
	}

	stats, err := a.manager.Load(ctx, in, size)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	done, err := writeStructured(out, format, stats)
	if done {
		return err
	}

	printLoadSummary(out, stats)

	return nil
}

func printLoadSummary(out io.Writer, stats session.Stats) {
	fmt.Fprintf(out, "Loaded %s issues and %s operations from %s in %s\n",
		humanize.Comma(stats.Issues),
		humanize.Comma(stats.Operations),
		humanize.IBytes(uint64(max(stats.Bytes, 0))),
		stats.Duration.Round(time.Millisecond),
	)

	fmt.Fprintf(out, "  fragments: %s, flushes: %d\n", humanize.Comma(stats.Fragments), stats.Flushes)

	if stats.Warnings > 0 {
		fmt.Fprintf(out, "  warnings: %s\n", humanize.Comma(stats.Warnings))
	}

	if stats.Unlinked > 0 {
		fmt.Fprintf(out, "  happy-path issues without operation: %d\n", stats.Unlinked)
	}
}
