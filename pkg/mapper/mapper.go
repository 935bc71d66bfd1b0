// Package mapper materializes report records from parser events and maps them
// into the normalized issue, operation and metadata records of package report.
package mapper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/scanreport/pkg/chunkparser"
	"github.com/Sumatoshi-tech/scanreport/pkg/mapper/schema"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
	"github.com/Sumatoshi-tech/scanreport/pkg/stringtable"
)

// ErrVersionUnknown is returned by MapOperation before the report version is set.
var ErrVersionUnknown = errors.New("report version not known yet")

// NoTemplate is the template key of absent descriptions.
const NoTemplate = -1

// Warning is a recovered field-level problem of one record.
type Warning struct {
	// Record is the section the record came from: issues, operations, summary or index.
	Record string `json:"record"`
	// ID is the id assigned to the record, -1 for singletons.
	ID      int64  `json:"id"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// String formats the warning for logs.
func (w Warning) String() string {
	if w.ID >= 0 {
		return fmt.Sprintf("%s[%d].%s: %s", w.Record, w.ID, w.Field, w.Message)
	}

	return fmt.Sprintf("%s.%s: %s", w.Record, w.Field, w.Message)
}

// Templates are the description template tables of the report index.
type Templates struct {
	Injection []string
	Response  []string
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithSchemaValidation toggles JSON Schema validation of issue and operation records.
func WithSchemaValidation(enabled bool) Option {
	return func(m *Mapper) {
		m.validate = enabled
	}
}

type operationKey struct {
	path   int64
	method report.Method
}

// Mapper maps records of one report. It owns the id counters and the
// happy-path links of the session and is not safe for concurrent use.
type Mapper struct {
	paths   *stringtable.Table
	strings *stringtable.Table

	issueSchema     *gojsonschema.Schema
	operationSchema *gojsonschema.Schema
	validate        bool

	version      report.Version
	versionKnown bool

	nextIssue     int64
	nextOperation int64

	operations map[operationKey]int64
	unlinked   map[operationKey][]report.StoredIssue
}

// New creates a Mapper interning paths into paths and every other repeated
// string into strs.
func New(paths, strs *stringtable.Table, opts ...Option) (*Mapper, error) {
	m := &Mapper{
		paths:      paths,
		strings:    strs,
		validate:   true,
		operations: make(map[operationKey]int64),
		unlinked:   make(map[operationKey][]report.StoredIssue),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.validate {
		var err error

		m.issueSchema, err = loadSchema("issue.json")
		if err != nil {
			return nil, err
		}

		m.operationSchema, err = loadSchema("operation.json")
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func loadSchema(name string) (*gojsonschema.Schema, error) {
	raw, err := schema.FS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	return compiled, nil
}

// SetReportVersion records the report schema version used for key normalization.
func (m *Mapper) SetReportVersion(v report.Version) {
	m.version = v
	m.versionKnown = true
}

// VersionKnown reports whether SetReportVersion was called.
func (m *Mapper) VersionKnown() bool {
	return m.versionKnown
}

// Issues returns the number of issues mapped so far.
func (m *Mapper) Issues() int64 {
	return m.nextIssue
}

// Operations returns the number of operations mapped so far.
func (m *Mapper) Operations() int64 {
	return m.nextOperation
}

// MapScalar applies a top-level scalar member to md. Unparsable report or
// engine versions are fatal and wrap report.ErrInvalidReportVersion.
func (m *Mapper) MapScalar(md *report.Metadata, key string, value chunkparser.Scalar) ([]Warning, error) {
	if value.Kind != chunkparser.String {
		if key == MemberReportVersion || key == MemberEngineVersion {
			return nil, fmt.Errorf("%w: %s is not a string", report.ErrInvalidReportVersion, key)
		}

		return []Warning{singletonWarning("report", key, "expected a string")}, nil
	}

	switch key {
	case MemberTaskID:
		md.TaskID = value.Text
	case MemberScanVersion:
		md.ScanVersion = value.Text
	case MemberDate:
		md.Date = value.Text
	case MemberReportVersion:
		v, err := report.ParseVersion(value.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		md.ReportVersion = v
		m.SetReportVersion(v)
	case MemberEngineVersion:
		v, err := report.ParseVersion(value.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		md.EngineVersion = v
	}

	return nil, nil
}

// MapSummary copies the summary object into md.
func (m *Mapper) MapSummary(rec Record, md *report.Metadata) []Warning {
	f := fields{rec: rec, record: MemberSummary, id: -1}

	md.State = f.str("state")
	md.ExitCode = int(f.integer("exitCode"))
	md.RequestsCount = f.integer("requestsCount")
	md.IssuesCount = f.integer("issuesCount")
	md.IsFullReport = f.boolean("isFullReport")

	return f.warnings
}

// MapIndex reads the description template tables.
func (m *Mapper) MapIndex(rec Record) (Templates, []Warning) {
	f := fields{rec: rec, record: MemberIndex, id: -1}

	return Templates{
		Injection: f.strList("injectionDescriptions"),
		Response:  f.strList("responseDescriptions"),
	}, f.warnings
}

// MapIssue assigns the next issue id to rec and normalizes it. Happy-path
// issues are linked to their operation when it is already mapped.
func (m *Mapper) MapIssue(rec Record) (report.StoredIssue, []Warning) {
	id := m.nextIssue
	m.nextIssue++

	f := fields{rec: rec, record: MemberIssues, id: id}
	m.validateRecord(&f, m.issueSchema)

	issue := report.StoredIssue{
		ID:                     id,
		PathID:                 m.paths.Intern(f.str("path")),
		Method:                 f.method("method"),
		Type:                   f.issueType("type"),
		Criticality:            f.criticality("criticality"),
		InjectionKeyID:         m.strings.Intern(f.str("injectionKey")),
		InjectionDescription:   f.template("injectionDescription"),
		APIResponseAnalysis:    f.analysis("apiResponseAnalysis"),
		RequestContentTypeID:   m.strings.Intern(f.str("requestContentType")),
		ResponseContentTypeID:  m.strings.Intern(f.str("responseContentType")),
		JSONPointer:            f.str("jsonPointer"),
		URL:                    f.str("url"),
		Curl:                   f.str("curl"),
		ResponseTime:           f.integer("responseTime"),
		ResponseHTTPStatusCode: int(f.integer("responseHttpStatusCode")),
		RequestBodyLength:      f.integer("requestBodyLength"),
		ResponseBodyLength:     f.integer("responseBodyLength"),
		OWASPMapping:           f.optStr("owaspMapping"),
		Operation:              report.NoOperation,
	}

	body, ok := extractBody(f.optStr("responseBody"), f.str("responseHttp"))
	if !ok {
		f.warn("responseBody", "not valid base64, using an empty body")
	}

	issue.ResponseBody = body
	issue.InjectionStatus, issue.IsContractConforming, issue.IntegralStatus = DeriveStatus(issue.APIResponseAnalysis)

	if issue.Type == report.IssueTypeHappyPath {
		key := operationKey{path: issue.PathID, method: issue.Method}

		if opID, linked := m.operations[key]; linked {
			issue.Operation = opID
		} else {
			m.unlinked[key] = append(m.unlinked[key], issue)
		}
	}

	return issue, f.warnings
}

// MapOperation assigns the next operation id to rec and normalizes it. The
// returned issues are earlier happy-path issues now linked to the operation;
// they must be stored again.
func (m *Mapper) MapOperation(rec Record) (report.Operation, []report.StoredIssue, []Warning, error) {
	if !m.versionKnown {
		return report.Operation{}, nil, nil, ErrVersionUnknown
	}

	id := m.nextOperation
	m.nextOperation++

	f := fields{rec: rec, record: MemberOperations, id: id}
	m.validateRecord(&f, m.operationSchema)

	path := f.str("path")

	op := report.Operation{
		ID:                id,
		OperationID:       f.str("operationId"),
		Path:              path,
		Method:            f.method("method"),
		Skipped:           f.boolean("skipped"),
		SkipReason:        f.str("skipReason"),
		TotalRequestCount: f.integer("totalRequestCount"),
		TotalExpected:     f.integer("totalExpected"),
		TotalUnexpected:   f.integer("totalUnexpected"),
		TotalFailure:      f.integer("totalFailure"),
	}

	if hp, ok := f.object("happyPath"); ok {
		hf := fields{rec: hp, record: MemberOperations, id: id}

		op.HappyPath = report.HappyPath{
			Key:            NormalizeOperationKey(hf.str("key"), m.version),
			Outcome:        hf.str("outcome"),
			HTTPStatusCode: int(hf.integer("httpStatusCode")),
			ResponseTime:   hf.integer("responseTime"),
		}

		for _, w := range hf.warnings {
			w.Field = "happyPath." + w.Field
			f.warnings = append(f.warnings, w)
		}
	}

	key := operationKey{path: m.paths.Intern(path), method: op.Method}

	var relinked []report.StoredIssue

	if _, dup := m.operations[key]; dup {
		f.warn("path", "duplicate operation for "+op.Method.String()+" "+path+", happy path stays with the first")
	} else {
		m.operations[key] = id

		relinked = m.unlinked[key]
		delete(m.unlinked, key)

		for i := range relinked {
			relinked[i].Operation = id
		}
	}

	return op, relinked, f.warnings, nil
}

// Unlinked returns the number of happy-path issues still without an operation.
func (m *Mapper) Unlinked() int {
	n := 0
	for _, issues := range m.unlinked {
		n += len(issues)
	}

	return n
}

func (m *Mapper) validateRecord(f *fields, s *gojsonschema.Schema) {
	if !m.validate || s == nil {
		return
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(map[string]any(f.rec)))
	if err != nil {
		f.warn("", "schema validation failed: "+err.Error())

		return
	}

	for _, verr := range result.Errors() {
		f.warn(strings.TrimPrefix(verr.Field(), "(root)."), verr.Description())
	}
}

func singletonWarning(record, field, msg string) Warning {
	return Warning{Record: record, ID: -1, Field: field, Message: msg}
}
