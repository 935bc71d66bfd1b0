package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/scanreport/pkg/query"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// Tool name constants.
const (
	ToolNameLoad       = "report_load"
	ToolNameIssuesPage = "report_issues_page"
	ToolNameIssue      = "report_issue"
	ToolNameSummary    = "report_summary"
	ToolNamePaths      = "report_paths"
)

// defaultPerPage is the page size when neither the call nor ServerDeps set one.
const defaultPerPage = 20

// Sentinel errors for tool input validation.
var (
	// ErrEmptyReportPath indicates the path parameter is empty.
	ErrEmptyReportPath = errors.New("path parameter is required and must not be empty")
	// ErrReportPathNotAbsolute indicates the path is not absolute.
	ErrReportPathNotAbsolute = errors.New("path must be an absolute path")
	// ErrUnknownIssueType indicates an unrecognized issue type filter.
	ErrUnknownIssueType = errors.New("unknown issue type")
	// ErrUnknownMethod indicates an unrecognized HTTP method filter.
	ErrUnknownMethod = errors.New("unknown method")
)

// Input types (auto-generate JSON schemas via struct tags).

// LoadInput is the input schema for the report_load tool.
type LoadInput struct {
	Path string `json:"path" jsonschema:"absolute path to a scan report JSON file"`
}

// IssuesPageInput is the input schema for the report_issues_page tool.
type IssuesPageInput struct {
	Page    int    `json:"page,omitempty"    jsonschema:"1-based page number (default: 1)"`
	PerPage int    `json:"perPage,omitempty" jsonschema:"issues per page (default: 20)"`
	Sort    string `json:"sort,omitempty"    jsonschema:"sort field: path, criticality, method, issueType or path,criticality"`
	Order   string `json:"order,omitempty"   jsonschema:"asc or desc (default: asc)"`
	Path    string `json:"path,omitempty"    jsonschema:"only issues of this exact API path"`
	Type    string `json:"type,omitempty"    jsonschema:"only issues of this type (e.g. CONFORMANCE)"`
	Method  string `json:"method,omitempty"  jsonschema:"only issues of this HTTP method"`
}

// IssueInput is the input schema for the report_issue tool.
type IssueInput struct {
	ID int64 `json:"id" jsonschema:"issue id"`
}

// SummaryInput is the input schema for the report_summary tool.
type SummaryInput struct {
	SkippedOnly bool `json:"skippedOnly,omitempty" jsonschema:"list only the skipped operations"`
}

// PathsInput is the input schema for the report_paths tool.
type PathsInput struct {
	Page     int    `json:"page,omitempty"     jsonschema:"1-based page number (default: 1)"`
	PerPage  int    `json:"perPage,omitempty"  jsonschema:"paths per page (default: 20)"`
	Contains string `json:"contains,omitempty" jsonschema:"only paths containing this substring"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func (s *Server) handleLoad(ctx context.Context, _ *mcpsdk.CallToolRequest, input LoadInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Path == "" {
		return errorResult(ErrEmptyReportPath)
	}

	if !filepath.IsAbs(input.Path) {
		return errorResult(fmt.Errorf("%w: %s", ErrReportPathNotAbsolute, input.Path))
	}

	f, err := os.Open(input.Path)
	if err != nil {
		return errorResult(fmt.Errorf("open report: %w", err))
	}
	defer f.Close()

	stats, err := s.manager.Load(ctx, f, s.fragmentSize)
	if err != nil {
		return errorResult(fmt.Errorf("load report: %w", err))
	}

	return jsonResult(stats)
}

func (s *Server) handleIssuesPage(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input IssuesPageInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	filter := query.Filter{Path: input.Path}

	if input.Type != "" {
		filter.IssueType = report.ParseIssueType(input.Type)
		if filter.IssueType == report.IssueTypeUnknown {
			return errorResult(fmt.Errorf("%w: %s", ErrUnknownIssueType, input.Type))
		}
	}

	if input.Method != "" {
		filter.Method = report.ParseMethod(input.Method)
		if filter.Method == report.MethodUnknown {
			return errorResult(fmt.Errorf("%w: %s", ErrUnknownMethod, input.Method))
		}
	}

	sort := query.Sort{Field: input.Sort, Order: query.ParseOrder(input.Order)}

	result, err := s.engine.GetIssuesPage(ctx, max(input.Page, 1), s.perPage(input.PerPage), sort, filter)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(result)
}

func (s *Server) handleIssue(ctx context.Context, _ *mcpsdk.CallToolRequest, input IssueInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	issue, err := s.engine.GetIssue(ctx, input.ID)
	if err != nil {
		return errorResult(fmt.Errorf("issue %d: %w", input.ID, err))
	}

	return jsonResult(issue)
}

func (s *Server) handleSummary(ctx context.Context, _ *mcpsdk.CallToolRequest, input SummaryInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.SkippedOnly {
		ops, err := s.engine.GetSkippedOperations(ctx)
		if err != nil {
			return errorResult(err)
		}

		return jsonResult(ops)
	}

	rep, err := s.engine.GetReport(ctx)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(rep)
}

func (s *Server) handlePaths(ctx context.Context, _ *mcpsdk.CallToolRequest, input PathsInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	result, err := s.engine.GetPaths(ctx, max(input.Page, 1), s.perPage(input.PerPage), query.PathFilter{Contains: input.Contains})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(result)
}

func (s *Server) perPage(requested int) int {
	return positiveOr(requested, s.defaultPerPage)
}
