package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want report.Version
	}{
		{name: "full", raw: "1.13.2", want: report.Version{Major: 1, Minor: 13, Patch: 2}},
		{name: "wildcard patch", raw: "1.13.x", want: report.Version{Major: 1, Minor: 13}},
		{name: "missing patch", raw: "2.0", want: report.Version{Major: 2}},
		{name: "major only", raw: "3", want: report.Version{Major: 3}},
		{name: "v prefix", raw: "v1.2.3", want: report.Version{Major: 1, Minor: 2, Patch: 3}},
		{name: "prerelease suffix", raw: "1.2.3-rc1", want: report.Version{Major: 1, Minor: 2, Patch: 3}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := report.ParseVersion(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseVersion_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "x.1.2", "1.2.3.4", "latest"} {
		_, err := report.ParseVersion(raw)
		require.ErrorIs(t, err, report.ErrInvalidReportVersion, raw)
	}
}

func TestVersion_Compare(t *testing.T) {
	t.Parallel()

	base := report.MustParseVersion("1.13.0")

	assert.Equal(t, 0, base.Compare(report.MustParseVersion("1.13.x")))
	assert.Equal(t, -1, report.MustParseVersion("1.12.9").Compare(base))
	assert.Equal(t, 1, report.MustParseVersion("2.0.0").Compare(base))
	assert.True(t, report.MustParseVersion("1.13.0").Less(report.MustParseVersion("1.13.1")))
	assert.False(t, base.Less(base))
	assert.Equal(t, "1.13.0", base.String())
}

func TestVersion_TextRoundTrip(t *testing.T) {
	t.Parallel()

	text, err := report.MustParseVersion("1.2.3").MarshalText()
	require.NoError(t, err)

	var v report.Version

	require.NoError(t, v.UnmarshalText(text))
	assert.Equal(t, report.Version{Major: 1, Minor: 2, Patch: 3}, v)
	require.Error(t, v.UnmarshalText([]byte("bogus")))
}

func TestEnums_ParseAndString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, report.MethodGet, report.ParseMethod("get"))
	assert.Equal(t, report.MethodTrace, report.ParseMethod("TRACE"))
	assert.Equal(t, report.MethodUnknown, report.ParseMethod("BREW"))
	assert.Equal(t, 8, int(report.MethodTrace))
	assert.Empty(t, report.MethodUnknown.String())
	assert.Empty(t, report.Method(42).String())

	assert.Equal(t, report.IssueTypeMethodNotAllowed, report.ParseIssueType("methodNotAllowed"))
	assert.Equal(t, report.IssueTypeHappyPath, report.ParseIssueType("HAPPY_PATH"))
	assert.Equal(t, 5, int(report.IssueTypeHappyPath))
	assert.Equal(t, "CONFORMANCE", report.IssueTypeConformance.String())

	assert.Equal(t, report.ResponseKeySuccessful, report.ParseResponseKey("successful"))
	assert.Equal(t, report.ResponseKeyNotApplicable, report.ParseResponseKey("not-applicable"))
	assert.Equal(t, report.ResponseKeyUnknown, report.ParseResponseKey("maybe"))
	assert.Equal(t, "unexpected", report.ResponseKeyUnexpected.String())
}

func TestLookupOWASP(t *testing.T) {
	t.Parallel()

	none := report.LookupOWASP(nil)
	require.NotNil(t, none)
	assert.Equal(t, report.OWASPNone, none.ID)

	id := "API8:2023"
	detail := report.LookupOWASP(&id)
	require.NotNil(t, detail)
	assert.Equal(t, "Security Misconfiguration", detail.Name)

	unknown := "API99:2031"
	assert.Nil(t, report.LookupOWASP(&unknown))
}

func TestStoredIssue_Index(t *testing.T) {
	t.Parallel()

	issue := report.StoredIssue{
		ID:          7,
		PathID:      2,
		Method:      report.MethodPost,
		Type:        report.IssueTypeHappyPath,
		Criticality: 3,
		Operation:   4,
	}

	assert.Equal(t, report.IssueIndex{
		ID: 7, Path: 2, Method: report.MethodPost, Criticality: 3,
		IssueType: report.IssueTypeHappyPath, Operation: 4,
	}, issue.Index())
}
