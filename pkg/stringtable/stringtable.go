// Package stringtable provides the deduplicating string interner used to
// normalize repeated report strings (paths, content types, injection keys)
// into small integer ids for the lifetime of one loaded report.
package stringtable

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// ErrNotFound is returned when resolving an id that was never interned.
var ErrNotFound = errors.New("string id not found")

// Table is an append-only interning table. Ids are allocated from zero in
// first-seen order. A Table is owned by one session and is not safe for
// concurrent use.
type Table struct {
	ids     map[string]int64
	values  []string
	drained int
}

// New creates an empty table.
func New() *Table {
	return &Table{ids: make(map[string]int64)}
}

// Intern returns the id of value, allocating one on first sight.
func (t *Table) Intern(value string) int64 {
	if id, ok := t.ids[value]; ok {
		return id
	}

	id := int64(len(t.values))
	t.ids[value] = id
	t.values = append(t.values, value)

	return id
}

// Lookup returns the id of value without interning it.
func (t *Table) Lookup(value string) (int64, bool) {
	id, ok := t.ids[value]

	return id, ok
}

// Resolve returns the string interned under id.
func (t *Table) Resolve(id int64) (string, error) {
	if id < 0 || id >= int64(len(t.values)) {
		return "", fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return t.values[id], nil
}

// Len returns the number of interned strings.
func (t *Table) Len() int {
	return len(t.values)
}

// Drain returns the entries interned since the previous Drain call.
func (t *Table) Drain() []report.StringEntry {
	if t.drained == len(t.values) {
		return nil
	}

	entries := make([]report.StringEntry, 0, len(t.values)-t.drained)
	for i := t.drained; i < len(t.values); i++ {
		entries = append(entries, report.StringEntry{ID: int64(i), Value: t.values[i]})
	}

	t.drained = len(t.values)

	return entries
}
