// Package query serves paginated, sorted and filtered views of a loaded report.
//
// Sorting, filtering and paging run over the compact issue index; issue bodies
// are fetched only for the ids of the requested page.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scanreport/internal/querycache"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

// tracerName is the default OTel tracer name for the query package.
const tracerName = "scanreport"

// Errors returned by the engine.
var (
	ErrInvalidPageSize    = errors.New("perPage must be positive")
	ErrReportNotAvailable = errors.New("Report is not yet available") //nolint:staticcheck // user-visible message
)

// Page is one page of results.
type Page[T any] struct {
	List          []T `json:"list"          yaml:"list"`
	FilteredItems int `json:"filteredItems" yaml:"filteredItems"`
	TotalPages    int `json:"totalPages"    yaml:"totalPages"`
	TotalItems    int `json:"totalItems"    yaml:"totalItems"`
}

// Filter narrows the issue set. Zero fields do not filter.
type Filter struct {
	Path      string           `json:"path,omitempty"`
	IssueType report.IssueType `json:"issueType,omitempty"`
	Method    report.Method    `json:"method,omitempty"`
}

// PathFilter narrows the paths listing to values containing Contains.
type PathFilter struct {
	Contains string `json:"contains,omitempty"`
}

// Report is the summary view of a loaded report.
type Report struct {
	Operations  []report.Operation `json:"operations"  yaml:"operations"`
	Summary     report.Metadata    `json:"summary"     yaml:"summary"`
	ScanVersion string             `json:"scanVersion" yaml:"scanVersion"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables the ordering cache with room for entries orderings.
func WithCache(entries int) Option {
	return func(e *Engine) {
		e.cache = querycache.New[[]report.IssueIndex](entries)
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets the tracer used for query spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// Engine answers page requests against a Store. It is safe for concurrent use.
type Engine struct {
	store  store.Store
	cache  *querycache.Cache[[]report.IssueIndex]
	logger *slog.Logger
	tracer trace.Tracer

	dictMu sync.Mutex
	dict   *dictionaries
}

// New creates an engine reading from s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{store: s}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}

	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}

	return e
}

// CacheStats returns the ordering cache counters.
func (e *Engine) CacheStats() querycache.Stats {
	return e.cache.Stats()
}

// CacheHits returns the number of ordering cache hits.
func (e *Engine) CacheHits() int64 { return e.cache.Stats().Hits }

// CacheMisses returns the number of ordering cache misses.
func (e *Engine) CacheMisses() int64 { return e.cache.Stats().Misses }

// CacheEntries returns the number of cached orderings.
func (e *Engine) CacheEntries() int64 { return int64(e.cache.Stats().Entries) }

// GetIssuesPage returns one page of issues. page is 1-based; values below 1
// select the first page. An unknown path filter yields an empty page.
func (e *Engine) GetIssuesPage(ctx context.Context, page, perPage int, sort Sort, filter Filter) (Page[report.Issue], error) {
	ctx, span := e.tracer.Start(ctx, "scanreport.query.issues_page",
		trace.WithAttributes(
			attribute.Int("query.page", page),
			attribute.Int("query.per_page", perPage),
			attribute.String("query.sort", sort.Field),
			attribute.String("query.order", string(sort.Order)),
			attribute.Bool("query.path_filter", filter.Path != ""),
		))
	defer span.End()

	result, err := e.issuesPage(ctx, page, perPage, sort, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return result, err
	}

	span.SetAttributes(
		attribute.Int("query.filtered_items", result.FilteredItems),
		attribute.Int("query.total_items", result.TotalItems),
	)

	return result, nil
}

func (e *Engine) issuesPage(ctx context.Context, page, perPage int, sort Sort, filter Filter) (Page[report.Issue], error) {
	if perPage <= 0 {
		return Page[report.Issue]{}, ErrInvalidPageSize
	}

	sort = sort.normalized()

	ordered, err := e.ordering(ctx, sort.Field)
	if err != nil {
		return Page[report.Issue]{}, err
	}

	if sort.Order == Descending {
		ordered = reversed(ordered)
	}

	result := Page[report.Issue]{TotalItems: len(ordered), List: []report.Issue{}}

	pathID := int64(-1)

	if filter.Path != "" {
		id, findErr := e.store.FindPath(ctx, filter.Path)
		if errors.Is(findErr, store.ErrNotFound) {
			return result, nil
		}

		if findErr != nil {
			return Page[report.Issue]{}, fmt.Errorf("find path: %w", findErr)
		}

		pathID = id
	}

	selected := ordered
	if filter.Path != "" || filter.IssueType != report.IssueTypeUnknown || filter.Method != report.MethodUnknown {
		selected = make([]report.IssueIndex, 0, len(ordered))

		for _, row := range ordered {
			if matches(row, pathID, filter) {
				selected = append(selected, row)
			}
		}
	}

	result.FilteredItems = len(selected)
	result.TotalPages = totalPages(len(selected), perPage)

	window := pageWindow(selected, page, perPage)
	if len(window) == 0 {
		return result, nil
	}

	ids := make([]int64, len(window))
	for i, row := range window {
		ids[i] = row.ID
	}

	stored, err := e.store.GetIssues(ctx, ids)
	if err != nil {
		return Page[report.Issue]{}, fmt.Errorf("get issues: %w", err)
	}

	dict, err := e.dictionaries(ctx)
	if err != nil {
		return Page[report.Issue]{}, err
	}

	result.List = make([]report.Issue, len(stored))
	for i := range stored {
		result.List[i] = dict.rehydrate(&stored[i])
	}

	return result, nil
}

func matches(row report.IssueIndex, pathID int64, filter Filter) bool {
	if filter.Path != "" && row.Path != pathID {
		return false
	}

	if filter.IssueType != report.IssueTypeUnknown && row.IssueType != filter.IssueType {
		return false
	}

	if filter.Method != report.MethodUnknown && row.Method != filter.Method {
		return false
	}

	return true
}

// ordering returns the index rows sorted ascending by field. Cached slices
// are shared and must not be modified.
func (e *Engine) ordering(ctx context.Context, field string) ([]report.IssueIndex, error) {
	gen, err := e.store.Generation(ctx)
	if err != nil {
		return nil, fmt.Errorf("store generation: %w", err)
	}

	key := querycache.Key{Generation: gen, Sort: field}

	if rows, ok := e.cache.Get(key); ok {
		return rows, nil
	}

	rows, err := e.store.ScanIssueIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan issue index: %w", err)
	}

	var paths map[int64]string

	if field == FieldPath || field == FieldPathCriticality {
		dict, dictErr := e.dictionaries(ctx)
		if dictErr != nil {
			return nil, dictErr
		}

		paths = dict.paths
	}

	sortIndex(rows, field, paths)
	e.cache.Put(key, rows)

	return rows, nil
}

// dictionaries returns the lookup tables of the current store generation.
func (e *Engine) dictionaries(ctx context.Context) (*dictionaries, error) {
	e.dictMu.Lock()
	defer e.dictMu.Unlock()

	gen, err := e.store.Generation(ctx)
	if err != nil {
		return nil, fmt.Errorf("store generation: %w", err)
	}

	if e.dict != nil && e.dict.generation == gen {
		return e.dict, nil
	}

	dict, err := loadDictionaries(ctx, e.store, gen)
	if err != nil {
		return nil, err
	}

	e.dict = dict

	return dict, nil
}

// totalPages is ceil(items/perPage) without the overflow of items+perPage-1.
func totalPages(items, perPage int) int {
	pages := items / perPage
	if items%perPage != 0 {
		pages++
	}

	return pages
}

// pageWindow returns the 1-based page of items. The range check runs on page
// counts first, so (page-1)*perPage is only formed when it is below len(items).
func pageWindow[T any](items []T, page, perPage int) []T {
	page = max(page, 1)

	if page-1 >= totalPages(len(items), perPage) {
		return nil
	}

	start := (page - 1) * perPage

	return items[start : start+min(perPage, len(items)-start)]
}

// GetIssue returns one rehydrated issue. Unknown ids wrap store.ErrNotFound.
func (e *Engine) GetIssue(ctx context.Context, id int64) (report.Issue, error) {
	stored, err := e.store.GetIssue(ctx, id)
	if err != nil {
		return report.Issue{}, err
	}

	dict, err := e.dictionaries(ctx)
	if err != nil {
		return report.Issue{}, err
	}

	return dict.rehydrate(&stored), nil
}

// GetReport returns the summary view. Without loaded metadata it returns
// ErrReportNotAvailable.
func (e *Engine) GetReport(ctx context.Context) (Report, error) {
	md, err := e.store.GetMetadata(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return Report{}, ErrReportNotAvailable
	}

	if err != nil {
		return Report{}, fmt.Errorf("get metadata: %w", err)
	}

	ops, err := e.store.ScanOperations(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("scan operations: %w", err)
	}

	if ops == nil {
		ops = []report.Operation{}
	}

	return Report{Operations: ops, Summary: md, ScanVersion: md.ScanVersion}, nil
}

// GetSkippedOperations returns the operations the scan skipped.
func (e *Engine) GetSkippedOperations(ctx context.Context) ([]report.Operation, error) {
	ops, err := e.store.ScanOperations(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan operations: %w", err)
	}

	skipped := slices.DeleteFunc(ops, func(op report.Operation) bool { return !op.Skipped })
	if skipped == nil {
		skipped = []report.Operation{}
	}

	return skipped, nil
}

// GetPaths returns one page of the paths index in id order.
func (e *Engine) GetPaths(ctx context.Context, page, perPage int, filter PathFilter) (Page[report.PathEntry], error) {
	if perPage <= 0 {
		return Page[report.PathEntry]{}, ErrInvalidPageSize
	}

	paths, err := e.store.ScanPaths(ctx)
	if err != nil {
		return Page[report.PathEntry]{}, fmt.Errorf("scan paths: %w", err)
	}

	result := Page[report.PathEntry]{TotalItems: len(paths)}

	selected := paths
	if filter.Contains != "" {
		selected = slices.DeleteFunc(slices.Clone(paths), func(p report.PathEntry) bool {
			return !strings.Contains(p.Value, filter.Contains)
		})
	}

	result.FilteredItems = len(selected)
	result.TotalPages = totalPages(len(selected), perPage)
	result.List = slices.Clone(pageWindow(selected, page, perPage))

	if result.List == nil {
		result.List = []report.PathEntry{}
	}

	e.logger.Debug("paths page", "page", page, "per_page", perPage, "filtered", result.FilteredItems)

	return result, nil
}
