package session

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scanreport/pkg/mapper"
	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

// drain pushes every queued parser event through the assembler.
func (s *Session) drain(ctx context.Context) error {
	for ev := range s.parser.Events() {
		item, ok, err := s.asm.Push(ev)
		if err != nil {
			return err
		}

		if !ok {
			continue
		}

		if err := s.handle(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) handle(ctx context.Context, item mapper.Item) error {
	switch item.Kind {
	case mapper.ItemScalar:
		warnings, err := s.mapper.MapScalar(&s.md, item.Key, item.Scalar)
		if err != nil {
			return err
		}

		s.warn(ctx, warnings)

		if item.Key == mapper.MemberReportVersion {
			return s.mapEarlyOperations(ctx)
		}
	case mapper.ItemSummary:
		s.warn(ctx, s.mapper.MapSummary(item.Record, &s.md))
	case mapper.ItemIndex:
		templates, warnings := s.mapper.MapIndex(item.Record)
		s.templates = &templates
		s.warn(ctx, warnings)
	case mapper.ItemOperation:
		if !s.mapper.VersionKnown() {
			s.early = append(s.early, item.Record)

			return nil
		}

		return s.mapOperation(ctx, item.Record)
	case mapper.ItemIssue:
		issue, warnings := s.mapper.MapIssue(item.Record)
		s.warn(ctx, warnings)
		s.issues = append(s.issues, issue)
	case mapper.ItemInvalid:
		s.warn(ctx, []mapper.Warning{{Record: item.Key, ID: -1, Message: item.Problem}})
	}

	if len(s.issues) >= s.opts.BatchSize || len(s.operations) >= s.opts.BatchSize {
		return s.flush(ctx)
	}

	return nil
}

func (s *Session) mapEarlyOperations(ctx context.Context) error {
	early := s.early
	s.early = nil

	for _, rec := range early {
		if err := s.mapOperation(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) mapOperation(ctx context.Context, rec mapper.Record) error {
	op, relinked, warnings, err := s.mapper.MapOperation(rec)
	if err != nil {
		return err
	}

	s.warn(ctx, warnings)
	s.operations = append(s.operations, op)
	// Linked issues are written again; the later row replaces the earlier one.
	s.issues = append(s.issues, relinked...)

	if len(s.issues) >= s.opts.BatchSize || len(s.operations) >= s.opts.BatchSize {
		return s.flush(ctx)
	}

	return nil
}

func (s *Session) warn(ctx context.Context, warnings []mapper.Warning) {
	if len(warnings) == 0 {
		return
	}

	s.stats.Warnings += int64(len(warnings))

	for _, w := range warnings {
		if len(s.warnings) < maxKeptWarnings {
			s.warnings = append(s.warnings, w)
		}

		s.opts.Logger.DebugContext(ctx, "record warning", "warning", w.String())
	}
}

// flush writes the buffered rows. Dictionaries go first so that readers
// never see an issue whose path is not stored yet.
func (s *Session) flush(ctx context.Context) error {
	ctx, span := s.opts.Tracer.Start(trace.ContextWithSpan(ctx, s.span), observability.SpanSessionFlush,
		trace.WithAttributes(
			attribute.Int("session.flush.issues", len(s.issues)),
			attribute.Int("session.flush.operations", len(s.operations)),
		))
	defer span.End()

	start := time.Now()

	if err := s.write(ctx); err != nil {
		span.RecordError(err)

		return err
	}

	s.stats.Flushes++
	s.opts.Metrics.RecordFlush(ctx, time.Since(start))

	return nil
}

func (s *Session) write(ctx context.Context) error {
	if paths := s.paths.Drain(); len(paths) > 0 {
		if err := s.store.BulkPutPathsIndex(ctx, paths); err != nil {
			return fmt.Errorf("put paths: %w", err)
		}
	}

	if strs := s.strs.Drain(); len(strs) > 0 {
		if err := s.store.BulkPutStrings(ctx, store.TableStrings, strs); err != nil {
			return fmt.Errorf("put strings: %w", err)
		}
	}

	if s.templates != nil {
		if err := s.writeTemplates(ctx, *s.templates); err != nil {
			return err
		}

		s.templates = nil
	}

	if len(s.issues) > 0 {
		index := make([]report.IssueIndex, len(s.issues))
		for i := range s.issues {
			index[i] = s.issues[i].Index()
		}

		if err := s.store.BulkPutIssues(ctx, s.issues); err != nil {
			return fmt.Errorf("put issues: %w", err)
		}

		if err := s.store.BulkPutIssueIndex(ctx, index); err != nil {
			return fmt.Errorf("put issue index: %w", err)
		}

		s.issues = s.issues[:0]
	}

	if len(s.operations) > 0 {
		if err := s.store.BulkPutOperations(ctx, s.operations); err != nil {
			return fmt.Errorf("put operations: %w", err)
		}

		s.operations = s.operations[:0]
	}

	return nil
}

func (s *Session) writeTemplates(ctx context.Context, t mapper.Templates) error {
	for table, values := range map[string][]string{
		store.TableInjectionDescription: t.Injection,
		store.TableResponseDescription:  t.Response,
	} {
		if len(values) == 0 {
			continue
		}

		entries := make([]report.StringEntry, len(values))
		for i, v := range values {
			entries[i] = report.StringEntry{ID: int64(i), Value: v}
		}

		if err := s.store.BulkPutStrings(ctx, table, entries); err != nil {
			return fmt.Errorf("put %s: %w", table, err)
		}
	}

	return nil
}
