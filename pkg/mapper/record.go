package mapper

import (
	"encoding/json"

	"github.com/Sumatoshi-tech/scanreport/pkg/chunkparser"
)

// Record is one materialized report object. Values are string, json.Number,
// bool, nil, []any or map[string]any.
type Record map[string]any

// String returns the string member key. ok is false when the member is
// absent; present reports whether a member exists at all.
func (r Record) String(key string) (value string, ok, present bool) {
	raw, present := r[key]
	if !present || raw == nil {
		return "", false, present
	}

	s, ok := raw.(string)

	return s, ok, present
}

// Int returns the integer member key. Fractional numbers are truncated.
func (r Record) Int(key string) (value int64, ok, present bool) {
	raw, present := r[key]
	if !present || raw == nil {
		return 0, false, present
	}

	n, isNumber := raw.(json.Number)
	if !isNumber {
		return 0, false, present
	}

	return numberToInt(n)
}

// Bool returns the boolean member key.
func (r Record) Bool(key string) (value, ok, present bool) {
	raw, present := r[key]
	if !present || raw == nil {
		return false, false, present
	}

	b, ok := raw.(bool)

	return b, ok, present
}

// Object returns the nested object member key.
func (r Record) Object(key string) (Record, bool) {
	raw, ok := r[key].(map[string]any)

	return Record(raw), ok
}

// Array returns the array member key.
func (r Record) Array(key string) ([]any, bool) {
	raw, ok := r[key].([]any)

	return raw, ok
}

func numberToInt(n json.Number) (int64, bool, bool) {
	i, err := n.Int64()
	if err == nil {
		return i, true, true
	}

	f, err := n.Float64()
	if err != nil {
		return 0, false, true
	}

	return int64(f), true, true
}

type buildFrame struct {
	object map[string]any
	array  []any
	isObj  bool
	key    string
	hasKey bool
}

// builder materializes one JSON value from parser events.
type builder struct {
	stack  []buildFrame
	result any
	done   bool
}

// push consumes one event and reports whether the value is complete.
func (b *builder) push(ev chunkparser.Event) bool {
	switch ev.Kind {
	case chunkparser.OpenObject:
		b.stack = append(b.stack, buildFrame{object: make(map[string]any), isObj: true, key: ev.Key, hasKey: ev.HasKey})
	case chunkparser.OpenArray:
		b.stack = append(b.stack, buildFrame{array: []any{}, key: ev.Key, hasKey: ev.HasKey})
	case chunkparser.CloseObject, chunkparser.CloseArray:
		closed := b.stack[len(b.stack)-1]
		b.stack = b.stack[:len(b.stack)-1]

		var value any = closed.array
		if closed.isObj {
			value = closed.object
		}

		b.add(closed.key, value)
	case chunkparser.Value:
		b.add(ev.Key, scalarValue(ev.Value))
	case chunkparser.Key:
	}

	return b.done
}

func (b *builder) add(key string, value any) {
	if len(b.stack) == 0 {
		b.result = value
		b.done = true

		return
	}

	top := &b.stack[len(b.stack)-1]
	if top.isObj {
		top.object[key] = value
	} else {
		top.array = append(top.array, value)
	}
}

func scalarValue(s chunkparser.Scalar) any {
	switch s.Kind {
	case chunkparser.String:
		return s.Text
	case chunkparser.Number:
		return json.Number(s.Text)
	case chunkparser.Bool:
		return s.Bool()
	default:
		return nil
	}
}
