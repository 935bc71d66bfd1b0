package mapper_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/scanreport/pkg/chunkparser"
	"github.com/Sumatoshi-tech/scanreport/pkg/mapper"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
	"github.com/Sumatoshi-tech/scanreport/pkg/stringtable"
)

const reportDoc = `{
  "taskId": "t-1",
  "extra": {"deep": [1, {"x": [2]}]},
  "issues": [
    {"path": "/a", "method": "GET", "type": "CONFORMANCE", "criticality": 5,
     "injectionKey": "schema.type",
     "injectionDescription": {"key": 0, "parameters": ["name", 3]},
     "apiResponseAnalysis": [{"responseKey": "expected", "responseDescription": {"key": 1, "parameters": ["400"]}}],
     "responseHttp": "HTTP/1.1 400\r\n\r\n{\"err\":1}", "responseHttpStatusCode": 400},
    42,
    {"path": "/b", "method": "post", "type": "HAPPY_PATH", "criticality": 0}
  ],
  "index": {"injectionDescriptions": ["bad %s of %s"], "responseDescriptions": ["x", "got %s"]},
  "summary": {"state": "finished", "exitCode": 0, "issuesCount": 3, "isFullReport": true},
  "reportVersion": "1.12.1",
  "operations": [{"operationId": "postB", "path": "/b", "method": "POST",
    "happyPath": {"key": "Happy.Path.Success", "outcome": "ok", "httpStatusCode": 200}}]
}`

func assemble(t *testing.T, doc string) []mapper.Item {
	t.Helper()

	p := chunkparser.New()
	require.NoError(t, p.Feed(doc))
	require.NoError(t, p.Finish())

	asm := mapper.NewAssembler()

	var items []mapper.Item

	for ev := range p.Events() {
		item, ok, err := asm.Push(ev)
		require.NoError(t, err)

		if ok {
			items = append(items, item)
		}
	}

	return items
}

func newMapper(t *testing.T) (*mapper.Mapper, *stringtable.Table, *stringtable.Table) {
	t.Helper()

	paths := stringtable.New()
	strs := stringtable.New()

	m, err := mapper.New(paths, strs)
	require.NoError(t, err)

	return m, paths, strs
}

func TestAssembler_ItemsInDocumentOrder(t *testing.T) {
	t.Parallel()

	items := assemble(t, reportDoc)

	kinds := make([]mapper.ItemKind, 0, len(items))
	for _, item := range items {
		kinds = append(kinds, item.Kind)
	}

	assert.Equal(t, []mapper.ItemKind{
		mapper.ItemScalar,
		mapper.ItemIssue, mapper.ItemInvalid, mapper.ItemIssue,
		mapper.ItemIndex, mapper.ItemSummary,
		mapper.ItemScalar,
		mapper.ItemOperation,
	}, kinds)

	assert.Equal(t, "t-1", items[0].Scalar.Text)
	assert.Equal(t, mapper.MemberIssues, items[2].Key)
	assert.Equal(t, "/b", items[3].Record["path"])
	assert.Equal(t, mapper.MemberReportVersion, items[6].Key)
}

func TestAssembler_RootMustBeObject(t *testing.T) {
	t.Parallel()

	p := chunkparser.New()
	require.NoError(t, p.Feed(`[{"a":1}]`))
	require.NoError(t, p.Finish())

	asm := mapper.NewAssembler()

	var err error

	for ev := range p.Events() {
		if _, _, err = asm.Push(ev); err != nil {
			break
		}
	}

	require.ErrorIs(t, err, chunkparser.ErrMalformedStream)
}

func TestAssembler_NullSummaryIsInvalid(t *testing.T) {
	t.Parallel()

	items := assemble(t, `{"summary": null, "issues": []}`)

	require.Len(t, items, 1)
	assert.Equal(t, mapper.ItemInvalid, items[0].Kind)
	assert.Equal(t, mapper.MemberSummary, items[0].Key)
}

func TestAssembler_WrongShapedSections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		key     string
		problem string
	}{
		{"summary array", `{"summary": [1, {"state": "x"}]}`, mapper.MemberSummary, "expected an object, value skipped"},
		{"index array", `{"index": []}`, mapper.MemberIndex, "expected an object, value skipped"},
		{"issues object", `{"issues": {"path": "/a"}}`, mapper.MemberIssues, "expected an array, member skipped"},
		{"operations object", `{"operations": {}}`, mapper.MemberOperations, "expected an array, member skipped"},
		{"issues scalar", `{"issues": 3}`, mapper.MemberIssues, "expected an array, member skipped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			items := assemble(t, tt.doc)
			require.Len(t, items, 1)
			assert.Equal(t, mapper.ItemInvalid, items[0].Kind)
			assert.Equal(t, tt.key, items[0].Key)
			assert.Equal(t, tt.problem, items[0].Problem)
		})
	}

	// The skipped member must not leak elements into later sections.
	items := assemble(t, `{"issues": {"x": {"path": "/a"}}, "operations": [{"path": "/b"}]}`)
	require.Len(t, items, 2)
	assert.Equal(t, mapper.ItemInvalid, items[0].Kind)
	assert.Equal(t, mapper.ItemOperation, items[1].Kind)
}

func TestMapper_MapIssue(t *testing.T) {
	t.Parallel()

	items := assemble(t, reportDoc)
	m, paths, strs := newMapper(t)

	issue, warnings := m.MapIssue(items[1].Record)
	assert.Empty(t, warnings)

	assert.Equal(t, int64(0), issue.ID)
	assert.Equal(t, report.MethodGet, issue.Method)
	assert.Equal(t, report.IssueTypeConformance, issue.Type)
	assert.Equal(t, 5, issue.Criticality)
	assert.Equal(t, report.TemplateRef{Key: 0, Parameters: []string{"name", "3"}}, issue.InjectionDescription)
	assert.Equal(t, []report.StoredAnalysis{{
		ResponseKey:         report.ResponseKeyExpected,
		ResponseDescription: report.TemplateRef{Key: 1, Parameters: []string{"400"}},
	}}, issue.APIResponseAnalysis)
	assert.Equal(t, `{"err":1}`, issue.ResponseBody)
	assert.Equal(t, 400, issue.ResponseHTTPStatusCode)
	assert.Equal(t, report.ResponseKeyExpected, issue.InjectionStatus)
	assert.True(t, issue.IsContractConforming)
	assert.Equal(t, report.IntegralExpectedConformitySuccess, issue.IntegralStatus)
	assert.Nil(t, issue.OWASPMapping)
	assert.Equal(t, report.NoOperation, issue.Operation)

	path, err := paths.Resolve(issue.PathID)
	require.NoError(t, err)
	assert.Equal(t, "/a", path)

	key, err := strs.Resolve(issue.InjectionKeyID)
	require.NoError(t, err)
	assert.Equal(t, "schema.type", key)

	content, err := strs.Resolve(issue.RequestContentTypeID)
	require.NoError(t, err)
	assert.Empty(t, content)

	second, _ := m.MapIssue(items[3].Record)
	assert.Equal(t, int64(1), second.ID)
	assert.Equal(t, int64(2), m.Issues())
}

func TestMapper_FieldWarningsKeepDefaults(t *testing.T) {
	t.Parallel()

	m, _, _ := newMapper(t)

	body := "not base64!"

	issue, warnings := m.MapIssue(mapper.Record{
		"path":         "/a",
		"method":       "FETCH",
		"criticality":  "high",
		"responseBody": body,
		"url":          7.0,
	})

	assert.Equal(t, report.MethodUnknown, issue.Method)
	assert.Equal(t, 0, issue.Criticality)
	assert.Empty(t, issue.ResponseBody)
	assert.Empty(t, issue.URL)

	fields := map[string]bool{}
	for _, w := range warnings {
		fields[w.Field] = true

		assert.Equal(t, mapper.MemberIssues, w.Record)
		assert.Equal(t, int64(0), w.ID)
	}

	assert.True(t, fields["method"])
	assert.True(t, fields["criticality"])
	assert.True(t, fields["responseBody"])
	assert.True(t, fields["url"])
}

func TestMapper_CriticalityClamped(t *testing.T) {
	t.Parallel()

	m, _, _ := newMapper(t)

	issue, warnings := m.MapIssue(mapper.Record{"path": "/a", "method": "GET", "criticality": json.Number("9")})

	assert.Equal(t, mapper.MaxCriticality, issue.Criticality)
	assert.NotEmpty(t, warnings)
}

func TestMapper_MapOperationNeedsVersion(t *testing.T) {
	t.Parallel()

	m, _, _ := newMapper(t)

	_, _, _, err := m.MapOperation(mapper.Record{"path": "/a", "method": "GET"})
	require.ErrorIs(t, err, mapper.ErrVersionUnknown)
}

func TestMapper_HappyPathLinkedWhenOperationArrivesLater(t *testing.T) {
	t.Parallel()

	items := assemble(t, reportDoc)
	m, _, _ := newMapper(t)

	var md report.Metadata

	_, err := m.MapScalar(&md, items[6].Key, items[6].Scalar)
	require.NoError(t, err)

	happy, _ := m.MapIssue(items[3].Record)
	assert.Equal(t, report.NoOperation, happy.Operation)
	assert.Equal(t, 1, m.Unlinked())

	op, relinked, warnings, err := m.MapOperation(items[7].Record)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "happy-path-success", op.HappyPath.Key)
	assert.Equal(t, 200, op.HappyPath.HTTPStatusCode)
	require.Len(t, relinked, 1)
	assert.Equal(t, happy.ID, relinked[0].ID)
	assert.Equal(t, op.ID, relinked[0].Operation)
	assert.Zero(t, m.Unlinked())

	again, _ := m.MapIssue(items[3].Record)
	assert.Equal(t, op.ID, again.Operation)
}

func TestMapper_VersionGatePassThrough(t *testing.T) {
	t.Parallel()

	m, _, _ := newMapper(t)
	m.SetReportVersion(report.MinimumDashSeparatorVersion)

	op, _, _, err := m.MapOperation(mapper.Record{
		"path": "/a", "method": "GET",
		"happyPath": map[string]any{"key": "Happy.Path"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Happy.Path", op.HappyPath.Key)
}

func TestMapper_MapScalarVersions(t *testing.T) {
	t.Parallel()

	m, _, _ := newMapper(t)

	var md report.Metadata

	_, err := m.MapScalar(&md, mapper.MemberEngineVersion,
		chunkparser.Scalar{Kind: chunkparser.String, Text: "1.13.x"})
	require.NoError(t, err)
	assert.Equal(t, report.Version{Major: 1, Minor: 13}, md.EngineVersion)
	assert.False(t, m.VersionKnown())

	_, err = m.MapScalar(&md, mapper.MemberReportVersion,
		chunkparser.Scalar{Kind: chunkparser.String, Text: "garbage"})
	require.ErrorIs(t, err, report.ErrInvalidReportVersion)

	_, err = m.MapScalar(&md, mapper.MemberReportVersion, chunkparser.Scalar{Kind: chunkparser.Number, Text: "1"})
	require.ErrorIs(t, err, report.ErrInvalidReportVersion)

	warnings, err := m.MapScalar(&md, mapper.MemberTaskID, chunkparser.Scalar{Kind: chunkparser.Null, Text: "null"})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestMapper_SummaryAndIndex(t *testing.T) {
	t.Parallel()

	items := assemble(t, reportDoc)
	m, _, _ := newMapper(t)

	templates, warnings := m.MapIndex(items[4].Record)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"bad %s of %s"}, templates.Injection)
	assert.Equal(t, []string{"x", "got %s"}, templates.Response)

	var md report.Metadata

	assert.Empty(t, m.MapSummary(items[5].Record, &md))
	assert.Equal(t, "finished", md.State)
	assert.Equal(t, int64(3), md.IssuesCount)
	assert.True(t, md.IsFullReport)
}

func TestWarning_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "issues[3].url: expected a string",
		mapper.Warning{Record: "issues", ID: 3, Field: "url", Message: "expected a string"}.String())
	assert.Equal(t, "summary.state: expected a string",
		mapper.Warning{Record: "summary", ID: -1, Field: "state", Message: "expected a string"}.String())
}
