package query_test

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/scanreport/pkg/query"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
	"github.com/Sumatoshi-tech/scanreport/pkg/stringtable"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

type row struct {
	path        string
	criticality int
	method      report.Method
	issueType   report.IssueType
}

func load(t *testing.T, s store.Store, rows []row) {
	t.Helper()

	ctx := context.Background()
	paths := stringtable.New()
	strs := stringtable.New()

	issues := make([]report.StoredIssue, 0, len(rows))
	index := make([]report.IssueIndex, 0, len(rows))

	for i, r := range rows {
		issue := report.StoredIssue{
			ID:                    int64(i),
			PathID:                paths.Intern(r.path),
			Method:                r.method,
			Type:                  r.issueType,
			Criticality:           r.criticality,
			InjectionKeyID:        strs.Intern("schema.type"),
			InjectionDescription:  report.TemplateRef{Key: 0, Parameters: []string{"name"}},
			RequestContentTypeID:  strs.Intern("application/json"),
			ResponseContentTypeID: 99,
			APIResponseAnalysis: []report.StoredAnalysis{{
				ResponseKey:         report.ResponseKeyExpected,
				ResponseDescription: report.TemplateRef{Key: 1, Parameters: []string{"400"}},
			}},
			Operation: report.NoOperation,
		}

		issues = append(issues, issue)
		index = append(index, issue.Index())
	}

	require.NoError(t, s.BulkPutPathsIndex(ctx, paths.Drain()))
	require.NoError(t, s.BulkPutStrings(ctx, store.TableStrings, strs.Drain()))
	require.NoError(t, s.BulkPutStrings(ctx, store.TableInjectionDescription,
		[]report.StringEntry{{ID: 0, Value: "field %s has the wrong type"}}))
	require.NoError(t, s.BulkPutStrings(ctx, store.TableResponseDescription,
		[]report.StringEntry{{ID: 0, Value: "unused"}, {ID: 1, Value: "server answered %s"}}))
	require.NoError(t, s.BulkPutIssues(ctx, issues))
	require.NoError(t, s.BulkPutIssueIndex(ctx, index))
}

func newEngine(t *testing.T, rows []row, opts ...query.Option) (*query.Engine, store.Store) {
	t.Helper()

	s := store.NewMemory(store.Options{})
	require.NoError(t, s.Open(context.Background()))
	load(t, s, rows)

	return query.New(s, opts...), s
}

var threeIssues = []row{
	{path: "/a", criticality: 5},
	{path: "/b", criticality: 2},
	{path: "/a", criticality: 3},
}

func pathsAndCriticality(list []report.Issue) [][2]any {
	out := make([][2]any, 0, len(list))
	for _, issue := range list {
		out = append(out, [2]any{issue.Path, issue.Criticality})
	}

	return out
}

func TestGetIssuesPage_CriticalityDescending(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, threeIssues)

	page, err := engine.GetIssuesPage(context.Background(), 1, 2,
		query.Sort{Field: query.FieldCriticality, Order: query.Descending}, query.Filter{})
	require.NoError(t, err)

	assert.Equal(t, [][2]any{{"/a", 5}, {"/a", 3}}, pathsAndCriticality(page.List))
	assert.Equal(t, 3, page.FilteredItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 3, page.TotalItems)
}

func TestGetIssuesPage_PathFilter(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, threeIssues)

	page, err := engine.GetIssuesPage(context.Background(), 1, 10,
		query.Sort{Field: query.FieldCriticality}, query.Filter{Path: "/b"})
	require.NoError(t, err)

	assert.Equal(t, 1, page.FilteredItems)
	assert.Equal(t, [][2]any{{"/b", 2}}, pathsAndCriticality(page.List))
}

func TestGetIssuesPage_UnknownPathIsEmpty(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, threeIssues)

	page, err := engine.GetIssuesPage(context.Background(), 1, 10,
		query.Sort{Field: query.FieldPath}, query.Filter{Path: "/nonexistent"})
	require.NoError(t, err)

	assert.Equal(t, 0, page.FilteredItems)
	assert.Empty(t, page.List)
	assert.NotNil(t, page.List)
	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, 3, page.TotalItems)
}

func TestGetIssuesPage_OutOfRangePage(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, threeIssues)

	page, err := engine.GetIssuesPage(context.Background(), 5, 2, query.Sort{}, query.Filter{})
	require.NoError(t, err)

	assert.Empty(t, page.List)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 3, page.FilteredItems)

	first, err := engine.GetIssuesPage(context.Background(), 0, 2, query.Sort{}, query.Filter{})
	require.NoError(t, err)
	assert.Len(t, first.List, 2)
}

func TestGetIssuesPage_HugePageArguments(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, threeIssues)
	ctx := context.Background()

	whole, err := engine.GetIssuesPage(ctx, 1, math.MaxInt, query.Sort{}, query.Filter{})
	require.NoError(t, err)
	assert.Len(t, whole.List, 3)
	assert.Equal(t, 1, whole.TotalPages)

	tests := []struct {
		name          string
		page, perPage int
		pages         int
	}{
		{"last page", math.MaxInt, 2, 2},
		{"both max", math.MaxInt, math.MaxInt, 1},
		{"second of huge", 2, math.MaxInt - 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page, pageErr := engine.GetIssuesPage(ctx, tt.page, tt.perPage, query.Sort{}, query.Filter{})
			require.NoError(t, pageErr)
			assert.Empty(t, page.List)
			assert.NotNil(t, page.List)
			assert.Equal(t, tt.pages, page.TotalPages)
			assert.Equal(t, 3, page.FilteredItems)
		})
	}

	paths, err := engine.GetPaths(ctx, math.MaxInt, math.MaxInt, query.PathFilter{})
	require.NoError(t, err)
	assert.Empty(t, paths.List)
	assert.Equal(t, 1, paths.TotalPages)

	paths, err = engine.GetPaths(ctx, 1, math.MaxInt, query.PathFilter{})
	require.NoError(t, err)
	assert.Len(t, paths.List, 2)
}

func TestGetIssuesPage_InvalidPageSize(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, threeIssues)

	_, err := engine.GetIssuesPage(context.Background(), 1, 0, query.Sort{}, query.Filter{})
	require.ErrorIs(t, err, query.ErrInvalidPageSize)

	_, err = engine.GetPaths(context.Background(), 1, -1, query.PathFilter{})
	require.ErrorIs(t, err, query.ErrInvalidPageSize)
}

func TestGetIssuesPage_UnknownFieldSortsByPathAscending(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, []row{
		{path: "/c", criticality: 1},
		{path: "/a", criticality: 2},
		{path: "/b", criticality: 3},
		{path: "/a", criticality: 4},
	})

	page, err := engine.GetIssuesPage(context.Background(), 1, 10,
		query.Sort{Field: "responseTime", Order: query.Descending}, query.Filter{})
	require.NoError(t, err)

	assert.Equal(t, [][2]any{{"/a", 2}, {"/a", 4}, {"/b", 3}, {"/c", 1}}, pathsAndCriticality(page.List))
}

func TestGetIssuesPage_CompositeSort(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, []row{
		{path: "/b", criticality: 1},
		{path: "/a", criticality: 4},
		{path: "/a", criticality: 2},
	})

	page, err := engine.GetIssuesPage(context.Background(), 1, 10,
		query.Sort{Field: query.FieldPathCriticality}, query.Filter{})
	require.NoError(t, err)

	assert.Equal(t, [][2]any{{"/a", 2}, {"/a", 4}, {"/b", 1}}, pathsAndCriticality(page.List))
}

func ids(list []report.Issue) []int64 {
	out := make([]int64, 0, len(list))
	for _, issue := range list {
		out = append(out, issue.ID)
	}

	return out
}

func manyRows() []row {
	rows := make([]row, 0, 47)
	for i := range 47 {
		rows = append(rows, row{path: fmt.Sprintf("/p%d", i%5), criticality: i % 3, method: report.Method(i%8 + 1)})
	}

	return rows
}

func TestGetIssuesPage_DescendingIsStableReverse(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, manyRows())
	ctx := context.Background()

	asc, err := engine.GetIssuesPage(ctx, 1, 100, query.Sort{Field: query.FieldCriticality}, query.Filter{})
	require.NoError(t, err)

	desc, err := engine.GetIssuesPage(ctx, 1, 100,
		query.Sort{Field: query.FieldCriticality, Order: query.Descending}, query.Filter{})
	require.NoError(t, err)

	want := ids(asc.List)
	for i, j := 0, len(want)-1; i < j; i, j = i+1, j-1 {
		want[i], want[j] = want[j], want[i]
	}

	assert.Equal(t, want, ids(desc.List))

	for i := 1; i < len(asc.List); i++ {
		prev, cur := asc.List[i-1], asc.List[i]
		if prev.Criticality == cur.Criticality {
			assert.Less(t, prev.ID, cur.ID, "ties keep id order")
		}
	}
}

func TestGetIssuesPage_PaginationCompleteness(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, manyRows(), query.WithCache(8))
	ctx := context.Background()

	sortSpec := query.Sort{Field: query.FieldPath, Order: query.Descending}
	filter := query.Filter{Method: report.MethodGet}

	full, err := engine.GetIssuesPage(ctx, 1, 1000, sortSpec, filter)
	require.NoError(t, err)
	require.NotEmpty(t, full.List)

	for _, perPage := range []int{1, 2, 3, 5, 7, 100} {
		var got []int64

		for page := 1; ; page++ {
			p, pageErr := engine.GetIssuesPage(ctx, page, perPage, sortSpec, filter)
			require.NoError(t, pageErr)

			if len(p.List) == 0 {
				assert.Equal(t, page-1, p.TotalPages, "perPage %d", perPage)

				break
			}

			got = append(got, ids(p.List)...)
		}

		assert.Equal(t, ids(full.List), got, "perPage %d", perPage)
	}

	for _, issue := range full.List {
		assert.Equal(t, "GET", issue.Method)
	}

	assert.Positive(t, engine.CacheStats().Hits)
}

func TestGetIssuesPage_IssueTypeFilter(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, []row{
		{path: "/a", issueType: report.IssueTypeConformance},
		{path: "/a", issueType: report.IssueTypeHappyPath},
	})

	page, err := engine.GetIssuesPage(context.Background(), 1, 10, query.Sort{},
		query.Filter{IssueType: report.IssueTypeHappyPath})
	require.NoError(t, err)

	require.Len(t, page.List, 1)
	assert.Equal(t, "HAPPY_PATH", page.List[0].IssueType)
}

func TestGetIssuesPage_CacheInvalidatedByWrites(t *testing.T) {
	t.Parallel()

	engine, s := newEngine(t, threeIssues, query.WithCache(4))
	ctx := context.Background()

	first, err := engine.GetIssuesPage(ctx, 1, 10, query.Sort{Field: query.FieldCriticality}, query.Filter{})
	require.NoError(t, err)
	require.Len(t, first.List, 3)

	require.NoError(t, s.Clear(ctx))

	after, err := engine.GetIssuesPage(ctx, 1, 10, query.Sort{Field: query.FieldCriticality}, query.Filter{})
	require.NoError(t, err)
	assert.Empty(t, after.List)
	assert.Zero(t, after.TotalItems)
}

func TestGetIssuesPage_SeesLoadFromAnotherHandle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	serving := store.NewSQLite(path, store.Options{})
	loading := store.NewSQLite(path, store.Options{})

	for _, s := range []*store.SQLite{serving, loading} {
		require.NoError(t, s.Open(ctx))
		t.Cleanup(func() { assert.NoError(t, s.Close()) })
	}

	engine := query.New(serving, query.WithCache(8))
	bySort := query.Sort{Field: query.FieldPath}

	load(t, loading, threeIssues)

	before, err := engine.GetIssuesPage(ctx, 1, 10, bySort, query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, before.TotalItems)

	require.NoError(t, loading.Clear(ctx))
	load(t, loading, []row{{path: "/z", criticality: 1}, {path: "/y", criticality: 4}, {path: "/x"}, {path: "/w"}})

	after, err := engine.GetIssuesPage(ctx, 1, 10, bySort, query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, after.TotalItems)
	assert.Equal(t, [][2]any{{"/w", 0}, {"/x", 0}, {"/y", 4}, {"/z", 1}}, pathsAndCriticality(after.List))

	paths, err := engine.GetPaths(ctx, 1, 10, query.PathFilter{})
	require.NoError(t, err)
	assert.Equal(t, "/z", paths.List[0].Value)
}

func TestRehydrate(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, []row{{path: "/a", method: report.MethodPatch, issueType: report.IssueTypeCustom}})

	issue, err := engine.GetIssue(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "/a", issue.Path)
	assert.Equal(t, "PATCH", issue.Method)
	assert.Equal(t, "CUSTOM", issue.IssueType)
	assert.Equal(t, "schema.type", issue.InjectionKey)
	assert.Equal(t, "field name has the wrong type", issue.InjectionDescription)
	assert.Equal(t, "application/json", issue.RequestContentType)
	assert.Equal(t, report.NotAvailable, issue.ResponseContentType)
	assert.Equal(t, []report.ResponseAnalysis{{ResponseKey: "expected", ResponseDescription: "server answered 400"}},
		issue.APIResponseAnalysis)
	require.NotNil(t, issue.OWASPDetail)
	assert.Equal(t, report.OWASPNone, issue.OWASPDetail.ID)

	_, err = engine.GetIssue(context.Background(), 42)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRehydrate_UnknownEnumsAreNotAvailable(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, []row{{path: "/a"}})

	issue, err := engine.GetIssue(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, report.NotAvailable, issue.Method)
	assert.Equal(t, report.NotAvailable, issue.IssueType)
}

func TestGetReport(t *testing.T) {
	t.Parallel()

	engine, s := newEngine(t, nil)
	ctx := context.Background()

	_, err := engine.GetReport(ctx)
	require.ErrorIs(t, err, query.ErrReportNotAvailable)
	assert.Equal(t, "Report is not yet available", err.Error())

	require.NoError(t, s.PutMetadata(ctx, report.Metadata{TaskID: "t-1", ScanVersion: "2.0"}))
	require.NoError(t, s.BulkPutOperations(ctx, []report.Operation{
		{ID: 0, Path: "/a", Method: report.MethodGet},
		{ID: 1, Path: "/b", Method: report.MethodPost, Skipped: true, SkipReason: "no credentials"},
	}))

	rep, err := engine.GetReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0", rep.ScanVersion)
	assert.Equal(t, "t-1", rep.Summary.TaskID)
	assert.Len(t, rep.Operations, 2)

	skipped, err := engine.GetSkippedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "/b", skipped[0].Path)
}

func TestGetPaths(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, []row{{path: "/pets"}, {path: "/pets/{id}"}, {path: "/users"}, {path: "/pets"}})
	ctx := context.Background()

	page, err := engine.GetPaths(ctx, 1, 2, query.PathFilter{})
	require.NoError(t, err)
	assert.Equal(t, []report.PathEntry{{ID: 0, Value: "/pets"}, {ID: 1, Value: "/pets/{id}"}}, page.List)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)

	filtered, err := engine.GetPaths(ctx, 1, 10, query.PathFilter{Contains: "pets"})
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.FilteredItems)

	none, err := engine.GetPaths(ctx, 3, 10, query.PathFilter{})
	require.NoError(t, err)
	assert.Empty(t, none.List)
	assert.NotNil(t, none.List)
}

func TestParseOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, query.Descending, query.ParseOrder("DESC"))
	assert.Equal(t, query.Descending, query.ParseOrder("descending"))
	assert.Equal(t, query.Ascending, query.ParseOrder(""))
	assert.Equal(t, query.Ascending, query.ParseOrder("sideways"))
}
