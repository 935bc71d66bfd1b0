package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// MaxAttributeValueLen is the longest string attribute value exported as is.
// Longer values are cut and suffixed with "...".
const MaxAttributeValueLen = 256

// attributeRule decides one class of keys. Rules are tried in order and the
// first match wins.
type attributeRule struct {
	prefix string
	exact  bool
	allow  bool
}

// attributeRules keep span attributes to the scanreport namespaces. Report
// content (request and response bodies, curl commands, URLs) may carry
// credentials of the scanned API and never leaves the process.
var attributeRules = []attributeRule{
	{prefix: "issue.curl", allow: false},
	{prefix: "issue.url", allow: false},
	{prefix: "issue.response", allow: false},
	{prefix: "http.request.header.authorization", allow: false},
	{prefix: "http.request.header.cookie", allow: false},
	{prefix: "request.body", exact: true, allow: false},
	{prefix: "response.body", exact: true, allow: false},
	{prefix: "user.", allow: false},
	{prefix: "email", exact: true, allow: false},

	{prefix: "scanreport.", allow: true},
	{prefix: "session.", allow: true},
	{prefix: "query.", allow: true},
	{prefix: "store.", allow: true},
	{prefix: "ingest.", allow: true},
	{prefix: "report.", allow: true},
	{prefix: "issue.", allow: true},
	{prefix: "cache", allow: true},
	{prefix: "mcp.", allow: true},
	{prefix: "http.", allow: true},
	{prefix: "error.", allow: true},
	{prefix: "error", exact: true, allow: true},
	{prefix: "url.path", exact: true, allow: true},
}

func (r attributeRule) matches(key string) bool {
	if r.exact {
		return key == r.prefix
	}

	return strings.HasPrefix(key, r.prefix)
}

// allowAttribute reports whether key may be exported. Keys matching no rule
// are dropped.
func allowAttribute(key string) bool {
	for _, r := range attributeRules {
		if r.matches(key) {
			return r.allow
		}
	}

	return false
}

// attributeFilter is a SpanProcessor that drops disallowed attributes and
// truncates long string values before the delegate sees the span.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger
}

// NewAttributeFilter wraps delegate. A non-nil logger receives a warning for
// every dropped key.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, logger: logger}
}

func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd passes a filtered view of s on; ended spans are read-only.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, attrs: f.filter(s.Attributes())})
}

func (f *attributeFilter) Shutdown(ctx context.Context) error {
	if err := f.delegate.Shutdown(ctx); err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	if err := f.delegate.ForceFlush(ctx); err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) filter(attrs []attribute.KeyValue) []attribute.KeyValue {
	kept := make([]attribute.KeyValue, 0, len(attrs))

	for _, kv := range attrs {
		if !allowAttribute(string(kv.Key)) {
			if f.logger != nil {
				f.logger.Warn("span attribute dropped", "key", string(kv.Key))
			}

			continue
		}

		if kv.Value.Type() == attribute.STRING && len(kv.Value.AsString()) > MaxAttributeValueLen {
			kv = kv.Key.String(kv.Value.AsString()[:MaxAttributeValueLen] + "...")
		}

		kept = append(kept, kv)
	}

	return kept
}

// filteredSpan is a ReadOnlySpan with replaced attributes.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}
