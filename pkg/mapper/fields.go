package mapper

import (
	"encoding/json"
	"strconv"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// Criticality bounds.
const (
	MinCriticality = 0
	MaxCriticality = 5
)

// fields reads typed members of one record, collecting a warning for every
// member that is present with the wrong type and substituting its default.
type fields struct {
	rec      Record
	record   string
	id       int64
	warnings []Warning
}

func (f *fields) warn(field, msg string) {
	f.warnings = append(f.warnings, Warning{Record: f.record, ID: f.id, Field: field, Message: msg})
}

func (f *fields) str(key string) string {
	v, ok, present := f.rec.String(key)
	if !ok && present && f.rec[key] != nil {
		f.warn(key, "expected a string")
	}

	return v
}

func (f *fields) optStr(key string) *string {
	v, ok, present := f.rec.String(key)
	if !ok {
		if present && f.rec[key] != nil {
			f.warn(key, "expected a string")
		}

		return nil
	}

	return &v
}

func (f *fields) integer(key string) int64 {
	v, ok, present := f.rec.Int(key)
	if !ok && present && f.rec[key] != nil {
		f.warn(key, "expected a number")
	}

	return v
}

func (f *fields) boolean(key string) bool {
	v, ok, present := f.rec.Bool(key)
	if !ok && present && f.rec[key] != nil {
		f.warn(key, "expected a boolean")
	}

	return v
}

func (f *fields) object(key string) (Record, bool) {
	obj, ok := f.rec.Object(key)
	if !ok && f.rec[key] != nil {
		f.warn(key, "expected an object")
	}

	return obj, ok
}

func (f *fields) method(key string) report.Method {
	name := f.str(key)

	m := report.ParseMethod(name)
	if m == report.MethodUnknown && name != "" {
		f.warn(key, "unknown method "+strconv.Quote(name))
	}

	return m
}

func (f *fields) issueType(key string) report.IssueType {
	name := f.str(key)

	t := report.ParseIssueType(name)
	if t == report.IssueTypeUnknown && name != "" {
		f.warn(key, "unknown issue type "+strconv.Quote(name))
	}

	return t
}

func (f *fields) criticality(key string) int {
	v := f.integer(key)

	switch {
	case v < MinCriticality:
		f.warn(key, "below range, clamped")

		return MinCriticality
	case v > MaxCriticality:
		f.warn(key, "above range, clamped")

		return MaxCriticality
	default:
		return int(v)
	}
}

func (f *fields) strList(key string) []string {
	raw, ok := f.rec.Array(key)
	if !ok {
		if f.rec[key] != nil {
			f.warn(key, "expected an array")
		}

		return nil
	}

	out := make([]string, len(raw))

	for i, item := range raw {
		s, isString := item.(string)
		if !isString {
			f.warn(key+"["+strconv.Itoa(i)+"]", "expected a string")
		}

		out[i] = s
	}

	return out
}

// template reads a {key, parameters} description reference.
func (f *fields) template(key string) report.TemplateRef {
	obj, ok := f.object(key)
	if !ok {
		return report.TemplateRef{Key: NoTemplate}
	}

	ref := report.TemplateRef{Key: NoTemplate}

	idx, ok, _ := obj.Int("key")
	if ok && idx >= 0 {
		ref.Key = int(idx)
	} else {
		f.warn(key+".key", "missing or invalid template key")
	}

	if params, isArray := obj.Array("parameters"); isArray {
		ref.Parameters = make([]string, len(params))
		for i, p := range params {
			ref.Parameters[i] = paramText(p)
		}
	} else if obj["parameters"] != nil {
		f.warn(key+".parameters", "expected an array")
	}

	return ref
}

func (f *fields) analysis(key string) []report.StoredAnalysis {
	raw, ok := f.rec.Array(key)
	if !ok {
		if f.rec[key] != nil {
			f.warn(key, "expected an array")
		}

		return nil
	}

	out := make([]report.StoredAnalysis, 0, len(raw))

	for i, item := range raw {
		field := key + "[" + strconv.Itoa(i) + "]"

		obj, isObject := item.(map[string]any)
		if !isObject {
			f.warn(field, "expected an object")

			continue
		}

		entry := fields{rec: Record(obj), record: f.record, id: f.id}

		name := entry.str("responseKey")

		rk := report.ParseResponseKey(name)
		if rk == report.ResponseKeyUnknown {
			f.warn(field+".responseKey", "unknown response key "+strconv.Quote(name))
		}

		out = append(out, report.StoredAnalysis{
			ResponseKey:         rk,
			ResponseDescription: entry.template("responseDescription"),
		})

		for _, w := range entry.warnings {
			w.Field = field + "." + w.Field
			f.warnings = append(f.warnings, w)
		}
	}

	return out
}

// paramText renders a template parameter. Non-string scalars keep their JSON text.
func paramText(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case json.Number:
		return p.String()
	case bool:
		return strconv.FormatBool(p)
	default:
		return ""
	}
}
