package report

import "strings"

// Method is an HTTP method encoded as a small integer in storage.
type Method int

// Supported methods. MethodUnknown decodes to an empty name.
const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
	MethodPatch
	MethodHead
	MethodOptions
	MethodTrace
)

var methodNames = [...]string{"", "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "TRACE"}

// ParseMethod decodes a method name case-insensitively. Unknown names yield MethodUnknown.
func ParseMethod(name string) Method {
	upper := strings.ToUpper(strings.TrimSpace(name))

	for i := MethodGet; i <= MethodTrace; i++ {
		if methodNames[i] == upper {
			return i
		}
	}

	return MethodUnknown
}

// String returns the upper-case method name, or "" when unknown.
func (m Method) String() string {
	if m < MethodUnknown || m > MethodTrace {
		return ""
	}

	return methodNames[m]
}

// IssueType classifies how an issue was produced.
type IssueType int

// Issue types in storage encoding.
const (
	IssueTypeUnknown IssueType = iota
	IssueTypeMethodNotAllowed
	IssueTypeConformance
	IssueTypeAuthorization
	IssueTypeCustom
	IssueTypeHappyPath
)

var issueTypeNames = [...]string{"", "METHOD_NOT_ALLOWED", "CONFORMANCE", "AUTHORIZATION", "CUSTOM", "HAPPY_PATH"}

// ParseIssueType decodes an issue type name. Both METHOD_NOT_ALLOWED and
// methodNotAllowed spellings are accepted.
func ParseIssueType(name string) IssueType {
	norm := normalizeEnumName(name)

	for i := IssueTypeMethodNotAllowed; i <= IssueTypeHappyPath; i++ {
		if normalizeEnumName(issueTypeNames[i]) == norm {
			return i
		}
	}

	return IssueTypeUnknown
}

// String returns the canonical upper-case name, or "" when unknown.
func (t IssueType) String() string {
	if t < IssueTypeUnknown || t > IssueTypeHappyPath {
		return ""
	}

	return issueTypeNames[t]
}

// ResponseKey is the verdict attached to one response analysis entry.
type ResponseKey int

// Response keys in storage encoding.
const (
	ResponseKeyUnknown ResponseKey = iota
	ResponseKeyExpected
	ResponseKeyUnexpected
	ResponseKeySuccessful
	ResponseKeyFailure
	ResponseKeyNotApplicable
)

var responseKeyNames = [...]string{"", "expected", "unexpected", "successful", "failure", "notApplicable"}

// ParseResponseKey decodes a response key name. Unknown names yield ResponseKeyUnknown.
func ParseResponseKey(name string) ResponseKey {
	norm := normalizeEnumName(name)

	for i := ResponseKeyExpected; i <= ResponseKeyNotApplicable; i++ {
		if normalizeEnumName(responseKeyNames[i]) == norm {
			return i
		}
	}

	return ResponseKeyUnknown
}

// String returns the response key name, or "" when unknown.
func (k ResponseKey) String() string {
	if k < ResponseKeyUnknown || k > ResponseKeyNotApplicable {
		return ""
	}

	return responseKeyNames[k]
}

// IntegralStatus combines contract conformity with the injection status.
// The empty value means the combination has no named outcome.
type IntegralStatus string

// The six named outcomes of conformity x injection status.
const (
	IntegralExpectedConformitySuccess   IntegralStatus = "expected conformity success"
	IntegralUnexpectedConformitySuccess IntegralStatus = "unexpected conformity success"
	IntegralIncorrectConformitySuccess  IntegralStatus = "incorrect conformity success"
	IntegralExpectedConformityFailure   IntegralStatus = "expected conformity failure"
	IntegralUnexpectedConformityFailure IntegralStatus = "unexpected conformity failure"
	IntegralIncorrectConformityFailure  IntegralStatus = "incorrect conformity failure"
)

func normalizeEnumName(name string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(name)))
}
