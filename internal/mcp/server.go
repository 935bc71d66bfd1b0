// Package mcp serves report loading and queries as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/query"
	"github.com/Sumatoshi-tech/scanreport/pkg/session"
	"github.com/Sumatoshi-tech/scanreport/pkg/version"
)

const implementationName = "scanreport"

// opPrefix prefixes tool names in span names and the RED "op" attribute.
const opPrefix = "mcp."

// traceIDPrefix starts the trailing text content that carries the trace id
// of a sampled call.
const traceIDPrefix = "trace_id="

// ServerDeps holds the dependencies of the MCP server. Manager and Engine
// are required.
type ServerDeps struct {
	Manager *session.Manager
	Engine  *query.Engine

	Logger  *slog.Logger
	Metrics *observability.REDMetrics
	Tracer  trace.Tracer

	// DefaultPerPage applies when a call does not set perPage.
	DefaultPerPage int
	// FragmentSize is the read size of report_load.
	FragmentSize int
}

// Server is an MCP server with the report tools registered.
type Server struct {
	inner *mcpsdk.Server
	tools []string

	metrics *observability.REDMetrics
	tracer  trace.Tracer

	manager        *session.Manager
	engine         *query.Engine
	defaultPerPage int
	fragmentSize   int
}

// NewServer registers all report tools on a new MCP server.
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		inner: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: implementationName, Version: version.Version},
			&mcpsdk.ServerOptions{Logger: deps.Logger},
		),
		metrics:        deps.Metrics,
		tracer:         deps.Tracer,
		manager:        deps.Manager,
		engine:         deps.Engine,
		defaultPerPage: positiveOr(deps.DefaultPerPage, defaultPerPage),
		fragmentSize:   deps.FragmentSize,
	}

	register(s, ToolNameLoad,
		"Load a scan report JSON file into the report store, replacing the previous report.",
		s.handleLoad)
	register(s, ToolNameIssuesPage,
		"Return one page of issues. Sort by path, criticality, method, issueType or path,criticality; "+
			"filter by exact path, issue type and method.",
		s.handleIssuesPage)
	register(s, ToolNameIssue, "Return one issue by id.", s.handleIssue)
	register(s, ToolNameSummary,
		"Return the report summary with its operations, or only the skipped operations.",
		s.handleSummary)
	register(s, ToolNamePaths, "Return one page of the distinct API paths.", s.handlePaths)

	slices.Sort(s.tools)

	return s
}

// ListToolNames returns the registered tool names in sorted order.
func (s *Server) ListToolNames() []string {
	return slices.Clone(s.tools)
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves on transport until ctx is done or the connection
// closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

type toolHandler[In any] func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error)

func register[In any](s *Server, name, description string, h toolHandler[In]) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: name, Description: description}, mcpsdk.ToolHandlerFor[In, ToolOutput](instrument(s, name, h)))
	s.tools = append(s.tools, name)
}

// instrument wraps h with a server span and RED metrics. A tool result with
// IsError set counts as rejected: the call reached the tool and the tool
// refused its input or found no report.
func instrument[In any](s *Server, name string, h toolHandler[In]) toolHandler[In] {
	if s.tracer == nil && s.metrics == nil {
		return h
	}

	op := opPrefix + name

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		done := s.metrics.TrackInflight(ctx, op)
		defer done()

		var span trace.Span
		if s.tracer != nil {
			ctx, span = s.tracer.Start(ctx, op,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("mcp.tool", name)),
			)
			defer span.End()
		}

		result, out, err := h(ctx, req, in)

		status := observability.StatusOK

		switch {
		case err != nil:
			status = observability.StatusError
		case result != nil && result.IsError:
			status = observability.StatusRejected
		}

		s.metrics.RecordRequest(ctx, op, status, time.Since(start))

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			if sc := span.SpanContext(); sc.IsSampled() && result != nil {
				result.Content = append(result.Content, &mcpsdk.TextContent{Text: traceIDPrefix + sc.TraceID().String()})
			}
		}

		return result, out, err
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}

	return fallback
}
