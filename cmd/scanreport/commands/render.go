package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

const (
	flagFormat      = "format"
	flagFormatShort = "f"
	flagFormatUsage = "output format: table, json or yaml"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// Criticality thresholds for coloring.
const (
	criticalityHigh   = 4
	criticalityMedium = 2
)

// writeStructured writes value as JSON or YAML. It returns false for the
// table format, which callers render themselves.
func writeStructured(w io.Writer, format string, value any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(value); err != nil {
			return true, fmt.Errorf("encode json: %w", err)
		}

		return true, nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()

		if err := enc.Encode(value); err != nil {
			return true, fmt.Errorf("encode yaml: %w", err)
		}

		return true, nil
	case formatTable, "":
		return false, nil
	default:
		return true, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// newTable returns a borderless table in the style of the other outputs.
func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

// renderIssues prints issues as a table with colored criticality.
func renderIssues(w io.Writer, issues []report.Issue) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"ID", "Criticality", "Method", "Path", "Type", "Injection", "Status"})

	for i := range issues {
		issue := &issues[i]
		tbl.AppendRow(table.Row{
			issue.ID,
			colorCriticality(issue.Criticality),
			issue.Method,
			issue.Path,
			issue.IssueType,
			issue.InjectionKey,
			issue.ResponseHTTPStatusCode,
		})
	}

	tbl.Render()
}

func colorCriticality(c int) string {
	s := strconv.Itoa(c)

	switch {
	case c >= criticalityHigh:
		return color.New(color.FgRed, color.Bold).Sprint(s)
	case c >= criticalityMedium:
		return color.New(color.FgYellow).Sprint(s)
	default:
		return color.New(color.FgGreen).Sprint(s)
	}
}
