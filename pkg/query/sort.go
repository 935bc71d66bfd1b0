package query

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// Sortable fields.
const (
	FieldPath            = "path"
	FieldCriticality     = "criticality"
	FieldMethod          = "method"
	FieldIssueType       = "issueType"
	FieldPathCriticality = "path,criticality"
)

// Order is a sort direction.
type Order string

// Sort directions.
const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// ParseOrder accepts asc, desc, ascending and descending in any case.
// Anything else is ascending.
func ParseOrder(s string) Order {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return Descending
	default:
		return Ascending
	}
}

// Sort selects the issue ordering.
type Sort struct {
	Field string `json:"field"`
	Order Order  `json:"order"`
}

// normalized maps unknown fields to path ascending.
func (s Sort) normalized() Sort {
	switch s.Field {
	case FieldPath, FieldCriticality, FieldMethod, FieldIssueType, FieldPathCriticality:
		return Sort{Field: s.Field, Order: ParseOrder(string(s.Order))}
	default:
		return Sort{Field: FieldPath, Order: Ascending}
	}
}

// sortIndex orders rows ascending by field. rows must be in id order; the
// stable sort keeps ties in id order.
func sortIndex(rows []report.IssueIndex, field string, paths map[int64]string) {
	byPath := func(a, b report.IssueIndex) int {
		return strings.Compare(paths[a.Path], paths[b.Path])
	}

	var less func(a, b report.IssueIndex) int

	switch field {
	case FieldCriticality:
		less = func(a, b report.IssueIndex) int { return cmp.Compare(a.Criticality, b.Criticality) }
	case FieldMethod:
		less = func(a, b report.IssueIndex) int { return cmp.Compare(a.Method, b.Method) }
	case FieldIssueType:
		less = func(a, b report.IssueIndex) int { return cmp.Compare(a.IssueType, b.IssueType) }
	case FieldPathCriticality:
		less = func(a, b report.IssueIndex) int {
			return cmp.Or(byPath(a, b), cmp.Compare(a.Criticality, b.Criticality))
		}
	default:
		less = byPath
	}

	slices.SortStableFunc(rows, less)
}

// reversed returns a reversed copy of rows.
func reversed(rows []report.IssueIndex) []report.IssueIndex {
	out := slices.Clone(rows)
	slices.Reverse(out)

	return out
}
