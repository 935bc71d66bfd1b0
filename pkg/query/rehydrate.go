package query

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/scanreport/pkg/mapper"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

// dictionaries are the lookup tables needed to render stored issues.
type dictionaries struct {
	generation uint64
	paths      map[int64]string
	strings    map[int64]string
	injection  map[int64]string
	response   map[int64]string
}

func loadDictionaries(ctx context.Context, s store.Store, generation uint64) (*dictionaries, error) {
	paths, err := s.ScanPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan paths: %w", err)
	}

	d := &dictionaries{generation: generation, paths: toMap(paths)}

	for table, dst := range map[string]*map[int64]string{
		store.TableStrings:              &d.strings,
		store.TableInjectionDescription: &d.injection,
		store.TableResponseDescription:  &d.response,
	} {
		entries, scanErr := s.ScanStrings(ctx, table)
		if scanErr != nil {
			return nil, fmt.Errorf("scan %s: %w", table, scanErr)
		}

		*dst = toMap(entries)
	}

	return d, nil
}

func toMap(entries []report.StringEntry) map[int64]string {
	out := make(map[int64]string, len(entries))
	for _, e := range entries {
		out[e.ID] = e.Value
	}

	return out
}

func lookup(table map[int64]string, id int64) string {
	if v, ok := table[id]; ok {
		return v
	}

	return report.NotAvailable
}

func orNA(s string) string {
	if s == "" {
		return report.NotAvailable
	}

	return s
}

// describe resolves a template reference. Absent references render empty,
// dangling ones as N/A.
func describe(templates map[int64]string, ref report.TemplateRef) string {
	if ref.Key == mapper.NoTemplate {
		return ""
	}

	template, ok := templates[int64(ref.Key)]
	if !ok {
		return report.NotAvailable
	}

	return mapper.Substitute(template, ref.Parameters)
}

// rehydrate renders a stored issue with all decorations resolved.
func (d *dictionaries) rehydrate(s *report.StoredIssue) report.Issue {
	issue := report.Issue{
		ID:                     s.ID,
		Path:                   lookup(d.paths, s.PathID),
		Method:                 orNA(s.Method.String()),
		IssueType:              orNA(s.Type.String()),
		Criticality:            s.Criticality,
		InjectionKey:           lookup(d.strings, s.InjectionKeyID),
		InjectionDescription:   describe(d.injection, s.InjectionDescription),
		APIResponseAnalysis:    make([]report.ResponseAnalysis, 0, len(s.APIResponseAnalysis)),
		RequestContentType:     lookup(d.strings, s.RequestContentTypeID),
		ResponseContentType:    lookup(d.strings, s.ResponseContentTypeID),
		JSONPointer:            s.JSONPointer,
		ResponseBody:           s.ResponseBody,
		URL:                    s.URL,
		Curl:                   s.Curl,
		ResponseTime:           s.ResponseTime,
		ResponseHTTPStatusCode: s.ResponseHTTPStatusCode,
		RequestBodyLength:      s.RequestBodyLength,
		ResponseBodyLength:     s.ResponseBodyLength,
		OWASPDetail:            report.LookupOWASP(s.OWASPMapping),
		InjectionStatus:        s.InjectionStatus.String(),
		IsContractConforming:   s.IsContractConforming,
		IntegralStatus:         string(s.IntegralStatus),
		Operation:              s.Operation,
	}

	if s.OWASPMapping != nil {
		issue.OWASPMapping = *s.OWASPMapping
	}

	for _, a := range s.APIResponseAnalysis {
		issue.APIResponseAnalysis = append(issue.APIResponseAnalysis, report.ResponseAnalysis{
			ResponseKey:         orNA(a.ResponseKey.String()),
			ResponseDescription: describe(d.response, a.ResponseDescription),
		})
	}

	return issue
}
