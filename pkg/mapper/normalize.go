package mapper

import (
	"encoding/base64"
	"strings"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// Placeholder is the positional parameter token of description templates.
const Placeholder = "%s"

// HTTPHeaderBodySeparator splits a raw HTTP response into headers and body.
const HTTPHeaderBodySeparator = "\r\n\r\n"

// Substitute replaces placeholders in template left to right with params.
// Placeholders without a parameter become empty and surplus parameters are ignored.
func Substitute(template string, params []string) string {
	if !strings.Contains(template, Placeholder) {
		return template
	}

	var sb strings.Builder

	sb.Grow(len(template))

	rest := template
	next := 0

	for {
		idx := strings.Index(rest, Placeholder)
		if idx < 0 {
			sb.WriteString(rest)

			break
		}

		sb.WriteString(rest[:idx])

		if next < len(params) {
			sb.WriteString(params[next])
		}

		next++
		rest = rest[idx+len(Placeholder):]
	}

	return sb.String()
}

// NormalizeOperationKey rewrites dot separated keys of reports older than
// report.MinimumDashSeparatorVersion into the dash separated lowercase form.
func NormalizeOperationKey(key string, reportVersion report.Version) string {
	if !reportVersion.Less(report.MinimumDashSeparatorVersion) {
		return key
	}

	return strings.ToLower(strings.ReplaceAll(key, ".", "-"))
}

// ExtractBody returns the response body of an issue. An encoded body wins;
// without one the body is cut out of the raw HTTP response. Undecodable
// bodies yield an empty string.
func ExtractBody(rawBody *string, responseHTTP string) string {
	body, _ := extractBody(rawBody, responseHTTP)

	return body
}

// extractBody also reports whether an encoded body failed to decode.
func extractBody(rawBody *string, responseHTTP string) (string, bool) {
	if rawBody != nil {
		decoded, err := base64.StdEncoding.DecodeString(*rawBody)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(*rawBody)
		}

		if err != nil {
			return "", false
		}

		return string(decoded), true
	}

	_, body, found := strings.Cut(responseHTTP, HTTPHeaderBodySeparator)
	if !found {
		return "", true
	}

	return body, true
}

// DeriveStatus computes the injection status, contract conformance and the
// integral status of an issue from its response analysis.
func DeriveStatus(analysis []report.StoredAnalysis) (report.ResponseKey, bool, report.IntegralStatus) {
	conforming := len(analysis) < 2

	if len(analysis) == 0 {
		return report.ResponseKeyUnknown, conforming, ""
	}

	injection := analysis[0].ResponseKey

	return injection, conforming, integralStatus(conforming, injection)
}

func integralStatus(conforming bool, injection report.ResponseKey) report.IntegralStatus {
	switch {
	case conforming && injection == report.ResponseKeyExpected:
		return report.IntegralExpectedConformitySuccess
	case conforming && injection == report.ResponseKeyUnexpected:
		return report.IntegralUnexpectedConformitySuccess
	case conforming && injection == report.ResponseKeySuccessful:
		return report.IntegralIncorrectConformitySuccess
	case !conforming && injection == report.ResponseKeyExpected:
		return report.IntegralExpectedConformityFailure
	case !conforming && injection == report.ResponseKeyUnexpected:
		return report.IntegralUnexpectedConformityFailure
	case !conforming && injection == report.ResponseKeySuccessful:
		return report.IntegralIncorrectConformityFailure
	default:
		return ""
	}
}
