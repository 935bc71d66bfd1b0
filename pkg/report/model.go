// Package report defines the normalized records of a conformance-scan report:
// issues, their compact index rows, scanned operations, interned paths and the
// per-report metadata.
package report

// NoOperation is the Operation column value of issues not linked to an operation.
const NoOperation int64 = -1

// NotAvailable is the placeholder rendered for decorations that could not be resolved.
const NotAvailable = "N/A"

// StringEntry is one row of an interning table.
type StringEntry struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
}

// PathEntry is one row of the paths index.
type PathEntry = StringEntry

// TemplateRef points into one of the report's description template tables
// together with the positional parameters to substitute.
type TemplateRef struct {
	Key        int      `json:"key"`
	Parameters []string `json:"parameters,omitempty"`
}

// StoredAnalysis is one apiResponseAnalysis entry in storage form.
type StoredAnalysis struct {
	ResponseKey         ResponseKey `json:"responseKey"`
	ResponseDescription TemplateRef `json:"responseDescription"`
}

// StoredIssue is the persisted form of an issue. Strings repeated across the
// report are replaced by interning ids and descriptions by template references.
type StoredIssue struct {
	ID                     int64            `json:"id"`
	PathID                 int64            `json:"pathId"`
	Method                 Method           `json:"method"`
	Type                   IssueType        `json:"type"`
	Criticality            int              `json:"criticality"`
	InjectionKeyID         int64            `json:"injectionKeyId"`
	InjectionDescription   TemplateRef      `json:"injectionDescription"`
	APIResponseAnalysis    []StoredAnalysis `json:"apiResponseAnalysis,omitempty"`
	RequestContentTypeID   int64            `json:"requestContentTypeId"`
	ResponseContentTypeID  int64            `json:"responseContentTypeId"`
	JSONPointer            string           `json:"jsonPointer,omitempty"`
	ResponseBody           string           `json:"responseBody,omitempty"`
	URL                    string           `json:"url,omitempty"`
	Curl                   string           `json:"curl,omitempty"`
	ResponseTime           int64            `json:"responseTime"`
	ResponseHTTPStatusCode int              `json:"responseHttpStatusCode"`
	RequestBodyLength      int64            `json:"requestBodyLength"`
	ResponseBodyLength     int64            `json:"responseBodyLength"`
	OWASPMapping           *string          `json:"owaspMapping,omitempty"`
	InjectionStatus        ResponseKey      `json:"injectionStatus"`
	IsContractConforming   bool             `json:"isContractConforming"`
	IntegralStatus         IntegralStatus   `json:"integralStatus,omitempty"`
	Operation              int64            `json:"operation"`
}

// Index returns the compact index row mirroring the sortable columns of the issue.
func (s *StoredIssue) Index() IssueIndex {
	return IssueIndex{
		ID:          s.ID,
		Path:        s.PathID,
		Method:      s.Method,
		Criticality: s.Criticality,
		IssueType:   s.Type,
		Operation:   s.Operation,
	}
}

// IssueIndex is the compact secondary row kept for sorting, filtering and paging.
type IssueIndex struct {
	ID          int64     `json:"id"`
	Path        int64     `json:"path"`
	Method      Method    `json:"method"`
	Criticality int       `json:"criticality"`
	IssueType   IssueType `json:"issueType"`
	Operation   int64     `json:"operation"`
}

// ResponseAnalysis is a rehydrated apiResponseAnalysis entry.
type ResponseAnalysis struct {
	ResponseKey         string `json:"responseKey"         yaml:"responseKey"`
	ResponseDescription string `json:"responseDescription" yaml:"responseDescription"`
}

// Issue is one conformance-test execution result with all display decorations resolved.
type Issue struct {
	ID                     int64              `json:"id"                           yaml:"id"`
	Path                   string             `json:"path"                         yaml:"path"`
	Method                 string             `json:"method"                       yaml:"method"`
	IssueType              string             `json:"issueType"                    yaml:"issueType"`
	Criticality            int                `json:"criticality"                  yaml:"criticality"`
	InjectionKey           string             `json:"injectionKey"                 yaml:"injectionKey"`
	InjectionDescription   string             `json:"injectionDescription"         yaml:"injectionDescription"`
	APIResponseAnalysis    []ResponseAnalysis `json:"apiResponseAnalysis"          yaml:"apiResponseAnalysis"`
	RequestContentType     string             `json:"requestContentType"           yaml:"requestContentType"`
	ResponseContentType    string             `json:"responseContentType"          yaml:"responseContentType"`
	JSONPointer            string             `json:"jsonPointer"                  yaml:"jsonPointer"`
	ResponseBody           string             `json:"responseBody"                 yaml:"responseBody"`
	URL                    string             `json:"url"                          yaml:"url"`
	Curl                   string             `json:"curl"                         yaml:"curl"`
	ResponseTime           int64              `json:"responseTime"                 yaml:"responseTime"`
	ResponseHTTPStatusCode int                `json:"responseHttpStatusCode"       yaml:"responseHttpStatusCode"`
	RequestBodyLength      int64              `json:"requestBodyLength"            yaml:"requestBodyLength"`
	ResponseBodyLength     int64              `json:"responseBodyLength"           yaml:"responseBodyLength"`
	OWASPMapping           string             `json:"owaspMapping,omitempty"       yaml:"owaspMapping,omitempty"`
	OWASPDetail            *OWASPDetail       `json:"owaspDetail,omitempty"        yaml:"owaspDetail,omitempty"`
	InjectionStatus        string             `json:"injectionStatus,omitempty"    yaml:"injectionStatus,omitempty"`
	IsContractConforming   bool               `json:"isContractConforming"         yaml:"isContractConforming"`
	IntegralStatus         string             `json:"integralStatus,omitempty"     yaml:"integralStatus,omitempty"`
	Operation              int64              `json:"operation"                    yaml:"operation"`
}

// HappyPath is the baseline request outcome of an operation.
type HappyPath struct {
	Key            string `json:"key"            yaml:"key"`
	Outcome        string `json:"outcome"        yaml:"outcome"`
	HTTPStatusCode int    `json:"httpStatusCode" yaml:"httpStatusCode"`
	ResponseTime   int64  `json:"responseTime"   yaml:"responseTime"`
}

// Operation is one scanned (path, method) pair with its aggregate counters.
type Operation struct {
	ID                int64     `json:"id"                   yaml:"id"`
	OperationID       string    `json:"operationId"          yaml:"operationId"`
	Path              string    `json:"path"                 yaml:"path"`
	Method            Method    `json:"method"               yaml:"method"`
	Skipped           bool      `json:"skipped"              yaml:"skipped"`
	SkipReason        string    `json:"skipReason,omitempty" yaml:"skipReason,omitempty"`
	HappyPath         HappyPath `json:"happyPath"            yaml:"happyPath"`
	TotalRequestCount int64     `json:"totalRequestCount"    yaml:"totalRequestCount"`
	TotalExpected     int64     `json:"totalExpected"        yaml:"totalExpected"`
	TotalUnexpected   int64     `json:"totalUnexpected"      yaml:"totalUnexpected"`
	TotalFailure      int64     `json:"totalFailure"         yaml:"totalFailure"`
}

// Metadata is the singleton summary record of a loaded report.
type Metadata struct {
	TaskID        string  `json:"taskId"        yaml:"taskId"`
	ReportVersion Version `json:"reportVersion" yaml:"reportVersion"`
	EngineVersion Version `json:"engineVersion" yaml:"engineVersion"`
	ScanVersion   string  `json:"scanVersion"   yaml:"scanVersion"`
	Date          string  `json:"date"          yaml:"date"`
	State         string  `json:"state"         yaml:"state"`
	ExitCode      int     `json:"exitCode"      yaml:"exitCode"`
	RequestsCount int64   `json:"requestsCount" yaml:"requestsCount"`
	IssuesCount   int64   `json:"issuesCount"   yaml:"issuesCount"`
	IsFullReport  bool    `json:"isFullReport"  yaml:"isFullReport"`
}
