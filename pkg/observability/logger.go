package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Log attribute keys added by TracingHandler.
const (
	LogKeyTraceID = "trace_id"
	LogKeySpanID  = "span_id"
	LogKeySession = "session"

	logKeyService = "service"
	logKeyEnv     = "env"
	logKeyMode    = "mode"
)

type sessionKey struct{}

// ContextWithSession tags ctx with a report session id. Records logged with
// the returned context carry it under LogKeySession.
func ContextWithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFromContext returns the session id set by ContextWithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)

	return id, ok && id != ""
}

// TracingHandler is an [slog.Handler] that adds the span and report session
// of the record's context. Service, mode and environment are attached once at
// construction, outside any group.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps inner.
func NewTracingHandler(inner slog.Handler, service, env string, appMode AppMode) *TracingHandler {
	static := []slog.Attr{slog.String(logKeyService, service), slog.String(logKeyMode, string(appMode))}
	if env != "" {
		static = append(static, slog.String(logKeyEnv, env))
	}

	return &TracingHandler{inner: inner.WithAttrs(static)}
}

// Enabled reports whether the inner handler logs at level.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle adds context attributes and passes the record on.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(slog.String(LogKeyTraceID, sc.TraceID().String()), slog.String(LogKeySpanID, sc.SpanID().String()))
	}

	if id, ok := SessionFromContext(ctx); ok {
		record.AddAttrs(slog.String(LogKeySession, id))
	}

	if err := th.inner.Handle(ctx, record); err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

// WithAttrs implements [slog.Handler].
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{inner: th.inner.WithAttrs(attrs)}
}

// WithGroup implements [slog.Handler].
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{inner: th.inner.WithGroup(name)}
}
