// Package httpapi exposes report ingestion and queries over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/query"
	"github.com/Sumatoshi-tech/scanreport/pkg/session"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

const tracerName = "scanreport"

// defaultPerPage is used when Options.DefaultPerPage is not positive.
const defaultPerPage = 20

// shutdownTimeout bounds graceful shutdown in Run.
const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	// RED records per-route request metrics. Nil disables them.
	RED *observability.REDMetrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	FragmentSize   int
	DefaultPerPage int
	// MaxReportBytes limits the POST /v1/report body. Zero means no limit.
	MaxReportBytes int64
}

// Server routes HTTP requests to a session manager and a query engine.
type Server struct {
	manager *session.Manager
	engine  *query.Engine
	opts    Options
}

// New creates a server. The engine must read the manager's store.
func New(manager *session.Manager, engine *query.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	if opts.DefaultPerPage <= 0 {
		opts.DefaultPerPage = defaultPerPage
	}

	return &Server{manager: manager, engine: engine, opts: opts}
}

// Handler returns the routed handler wrapped in tracing middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /v1/report", s.handleLoad)
	s.route(mux, "GET /v1/report", s.handleReport)
	s.route(mux, "GET /v1/session", s.handleSession)
	s.route(mux, "DELETE /v1/session", s.handleCancel)
	s.route(mux, "GET /v1/issues", s.handleIssues)
	s.route(mux, "GET /v1/issues/{id}", s.handleIssue)
	s.route(mux, "GET /v1/paths", s.handlePaths)
	s.route(mux, "GET /v1/operations/skipped", s.handleSkipped)

	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(observability.Check{Name: "store", Probe: s.storeReady}))

	if s.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.opts.MetricsHandler)
	}

	return observability.HTTPMiddleware(s.opts.Tracer, mux)
}

func (s *Server) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, observability.MetricsMiddleware(s.opts.RED, pattern, fn))
}

// storeReady fails while the store cannot be read. An empty store is ready.
func (s *Server) storeReady(ctx context.Context) error {
	_, err := s.manager.Store().GetMetadata(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return nil
}

// Run serves on srv.Addr until ctx is done, then shuts down gracefully.
// srv.Handler is replaced by the server's handler.
func (s *Server) Run(ctx context.Context, srv *http.Server) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	return s.Serve(ctx, srv, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, srv *http.Server, listener net.Listener) error {
	srv.Handler = s.Handler()

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.opts.Logger.InfoContext(ctx, "http server listening", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	s.opts.Logger.InfoContext(ctx, "http server stopped")

	return nil
}
