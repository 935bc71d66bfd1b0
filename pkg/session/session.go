// Package session drives the load of one report: fragments go through the
// chunk parser, the record assembler and the mapper, and the normalized
// records are written to a store in batches.
//
// A Manager owns the store and allows one active session at a time. Beginning
// a new session cancels the previous one and clears the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scanreport/pkg/chunkparser"
	"github.com/Sumatoshi-tech/scanreport/pkg/mapper"
	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
	"github.com/Sumatoshi-tech/scanreport/pkg/stringtable"
)

const tracerName = "scanreport"

// Session errors.
var (
	ErrSessionCancelled = errors.New("session cancelled")
	ErrSessionFinished  = errors.New("session already finished")
)

// maxKeptWarnings bounds the warnings retained for Warnings; all of them are
// counted and logged.
const maxKeptWarnings = 100

// Options configures sessions.
type Options struct {
	// BatchSize is the number of issues buffered before a flush.
	BatchSize int
	// MaxDepth and MaxTokenBytes are passed to the chunk parser.
	MaxDepth      int
	MaxTokenBytes int
	// SkipSchemaValidation disables JSON Schema validation of records.
	SkipSchemaValidation bool

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.IngestMetrics
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = store.DefaultBatchSize
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}

	return o
}

// Stats are the counters of one session.
type Stats struct {
	ID         string        `json:"id"         yaml:"id"`
	Fragments  int64         `json:"fragments"  yaml:"fragments"`
	Bytes      int64         `json:"bytes"      yaml:"bytes"`
	Issues     int64         `json:"issues"     yaml:"issues"`
	Operations int64         `json:"operations" yaml:"operations"`
	Warnings   int64         `json:"warnings"   yaml:"warnings"`
	Flushes    int64         `json:"flushes"    yaml:"flushes"`
	Unlinked   int           `json:"unlinked"   yaml:"unlinked"`
	Duration   time.Duration `json:"duration"   yaml:"duration"`
}

// Session is one report load. Feed and Finish may be called from any
// goroutine but are serialized.
type Session struct {
	id    string
	store store.Store
	opts  Options

	parser *chunkparser.Parser
	asm    *mapper.Assembler
	mapper *mapper.Mapper
	paths  *stringtable.Table
	strs   *stringtable.Table

	mu        sync.Mutex
	cancelled bool
	finished  bool
	err       error

	md         report.Metadata
	templates  *mapper.Templates
	issues     []report.StoredIssue
	operations []report.Operation
	// early holds operation records seen before reportVersion.
	early []mapper.Record

	warnings []mapper.Warning
	stats    Stats
	start    time.Time
	span     trace.Span
}

func newSession(ctx context.Context, id string, s store.Store, opts Options) (*Session, error) {
	paths := stringtable.New()
	strs := stringtable.New()

	m, err := mapper.New(paths, strs, mapper.WithSchemaValidation(!opts.SkipSchemaValidation))
	if err != nil {
		return nil, fmt.Errorf("create mapper: %w", err)
	}

	var parserOpts []chunkparser.Option
	if opts.MaxDepth > 0 {
		parserOpts = append(parserOpts, chunkparser.WithMaxDepth(opts.MaxDepth))
	}

	if opts.MaxTokenBytes > 0 {
		parserOpts = append(parserOpts, chunkparser.WithMaxTokenBytes(opts.MaxTokenBytes))
	}

	_, span := opts.Tracer.Start(ctx, "scanreport.session.load",
		trace.WithAttributes(attribute.String("session.id", id)))

	return &Session{
		id:     id,
		store:  s,
		opts:   opts,
		parser: chunkparser.New(parserOpts...),
		asm:    mapper.NewAssembler(),
		mapper: m,
		paths:  paths,
		strs:   strs,
		stats:  Stats{ID: id},
		start:  time.Now(),
		span:   span,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

func (s *Session) snapshot() Stats {
	st := s.stats
	st.Issues = s.mapper.Issues()
	st.Operations = s.mapper.Operations()
	st.Unlinked = s.mapper.Unlinked()
	st.Duration = time.Since(s.start)

	return st
}

// Warnings returns the first field-level warnings of the load.
func (s *Session) Warnings() []mapper.Warning {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]mapper.Warning(nil), s.warnings...)
}

// Feed consumes the next fragment of the report. Fragments must be fed in
// document order; an empty fragment is a no-op.
func (s *Session) Feed(ctx context.Context, fragment string) error {
	ctx = observability.ContextWithSession(ctx, s.id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return s.fail(ctx, err)
	}

	s.stats.Fragments++
	s.stats.Bytes += int64(len(fragment))

	if err := s.parser.Feed(fragment); err != nil {
		return s.fail(ctx, err)
	}

	if err := s.drain(ctx); err != nil {
		return s.fail(ctx, err)
	}

	return nil
}

// Finish completes the load: it validates the document end, flushes the
// buffered rows and stores the metadata. A report without reportVersion fails.
func (s *Session) Finish(ctx context.Context) (Stats, error) {
	ctx = observability.ContextWithSession(ctx, s.id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return s.snapshot(), err
	}

	if err := s.finish(ctx); err != nil {
		return s.snapshot(), s.fail(ctx, err)
	}

	s.finished = true
	stats := s.snapshot()

	s.span.SetAttributes(
		attribute.Int64("session.issues", stats.Issues),
		attribute.Int64("session.operations", stats.Operations),
		attribute.Int64("session.warnings", stats.Warnings),
		attribute.Int64("session.bytes", stats.Bytes),
	)
	s.span.End()

	s.opts.Metrics.RecordLoad(ctx, ingestStats(stats, observability.LoadFinished))
	s.opts.Logger.InfoContext(ctx, "report loaded",
		"issues", stats.Issues,
		"operations", stats.Operations,
		"warnings", stats.Warnings,
		"unlinked_happy_path", stats.Unlinked,
		"bytes", stats.Bytes,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *Session) finish(ctx context.Context) error {
	if err := s.parser.Finish(); err != nil {
		return err
	}

	if err := s.drain(ctx); err != nil {
		return err
	}

	if !s.mapper.VersionKnown() {
		return fmt.Errorf("%w: %s is missing", report.ErrInvalidReportVersion, mapper.MemberReportVersion)
	}

	if err := s.flush(ctx); err != nil {
		return err
	}

	if err := s.store.PutMetadata(ctx, s.md); err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}

	return nil
}

// usable reports why the session can no longer be used, if it cannot.
func (s *Session) usable() error {
	switch {
	case s.cancelled:
		return ErrSessionCancelled
	case s.err != nil:
		return s.err
	case s.finished:
		return ErrSessionFinished
	default:
		return nil
	}
}

// cancel stops the session. It waits for an in-flight Feed or Finish so that
// no write of the session happens after it returns.
func (s *Session) cancel(ctx context.Context) {
	ctx = observability.ContextWithSession(ctx, s.id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled || s.finished || s.err != nil {
		s.cancelled = true

		return
	}

	s.cancelled = true

	s.span.SetStatus(codes.Error, ErrSessionCancelled.Error())
	s.span.End()

	s.opts.Metrics.RecordLoad(ctx, ingestStats(s.snapshot(), observability.LoadCancelled))
	s.opts.Logger.InfoContext(ctx, "report load cancelled")
}

// abort fails the session with err unless it already ended.
func (s *Session) abort(ctx context.Context, err error) error {
	ctx = observability.ContextWithSession(ctx, s.id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if u := s.usable(); u != nil {
		return u
	}

	return s.fail(ctx, err)
}

// fail makes err the terminal state of the session and clears the store so
// that no partial report stays visible.
func (s *Session) fail(ctx context.Context, err error) error {
	s.err = err

	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.End()

	s.opts.Metrics.RecordLoad(ctx, ingestStats(s.snapshot(), observability.LoadFailed))
	s.opts.Logger.ErrorContext(ctx, "report load failed",
		"error", err,
		"offset", s.parser.Offset(),
		"buffered_bytes", s.parser.Buffered(),
		"pending_events", s.parser.Pending(),
	)

	// ctx may already be done.
	if clearErr := s.store.Clear(context.WithoutCancel(ctx)); clearErr != nil {
		s.err = errors.Join(err, fmt.Errorf("clear store: %w", clearErr))
	}

	return s.err
}

func ingestStats(st Stats, outcome observability.LoadOutcome) observability.IngestStats {
	return observability.IngestStats{
		Fragments:  st.Fragments,
		Bytes:      st.Bytes,
		Issues:     st.Issues,
		Operations: st.Operations,
		Warnings:   st.Warnings,
		Duration:   st.Duration,
		Outcome:    outcome,
	}
}
