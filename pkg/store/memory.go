package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

type memTables struct {
	issues     map[int64][]byte
	index      map[int64]report.IssueIndex
	operations map[int64]report.Operation
	paths      map[int64]string
	pathIDs    map[string]int64
	strings    map[string]map[int64]string
	metadata   *report.Metadata
}

func newMemTables() *memTables {
	return &memTables{
		issues:     make(map[int64][]byte),
		index:      make(map[int64]report.IssueIndex),
		operations: make(map[int64]report.Operation),
		paths:      make(map[int64]string),
		pathIDs:    make(map[string]int64),
		strings:    make(map[string]map[int64]string),
	}
}

// Memory is an in-process Store.
type Memory struct {
	opts Options

	mu     sync.RWMutex
	tables *memTables
	open   bool

	generation atomic.Uint64
}

// NewMemory creates an in-process store.
func NewMemory(opts Options) *Memory {
	return &Memory{opts: opts.withDefaults()}
}

// Open implements Store.Open.
func (m *Memory) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tables == nil {
		m.tables = newMemTables()
	}

	m.open = true

	return nil
}

// Close implements Store.Close. The tables are released.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = false
	m.tables = nil

	return nil
}

// Clear implements Store.Clear by swapping in empty tables.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return ErrNotOpen
	}

	m.tables = newMemTables()
	m.generation.Add(1)

	return nil
}

// Generation implements Store.Generation. Memory tables are private to the
// process, so the counter never fails.
func (m *Memory) Generation(_ context.Context) (uint64, error) {
	return m.generation.Load(), nil
}

// write runs fn for each batch of n rows under the write lock.
func (m *Memory) write(ctx context.Context, n int, fn func(t *memTables, start, end int) error) error {
	for _, b := range batches(n, m.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.writeBatch(fn, b[0], b[1]); err != nil {
			return err
		}
	}

	return nil
}

func (m *Memory) writeBatch(fn func(t *memTables, start, end int) error, start, end int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return ErrNotOpen
	}

	err := fn(m.tables, start, end)
	if err != nil {
		return err
	}

	m.generation.Add(1)

	return nil
}

func (m *Memory) checkOpen() error {
	return m.read(func(*memTables) error { return nil })
}

func (m *Memory) read(fn func(t *memTables) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.open {
		return ErrNotOpen
	}

	return fn(m.tables)
}

// BulkPutIssues implements Store.BulkPutIssues.
func (m *Memory) BulkPutIssues(ctx context.Context, issues []report.StoredIssue) error {
	if len(issues) == 0 {
		return m.checkOpen()
	}

	return m.write(ctx, len(issues), func(t *memTables, start, end int) error {
		for i := start; i < end; i++ {
			blob, err := packRecord(m.opts.Codec, &issues[i])
			if err != nil {
				return fmt.Errorf("pack issue %d: %w", issues[i].ID, err)
			}

			t.issues[issues[i].ID] = blob
		}

		return nil
	})
}

// BulkPutIssueIndex implements Store.BulkPutIssueIndex.
func (m *Memory) BulkPutIssueIndex(ctx context.Context, rows []report.IssueIndex) error {
	if len(rows) == 0 {
		return m.checkOpen()
	}

	return m.write(ctx, len(rows), func(t *memTables, start, end int) error {
		for _, row := range rows[start:end] {
			t.index[row.ID] = row
		}

		return nil
	})
}

// BulkPutOperations implements Store.BulkPutOperations.
func (m *Memory) BulkPutOperations(ctx context.Context, ops []report.Operation) error {
	if len(ops) == 0 {
		return m.checkOpen()
	}

	return m.write(ctx, len(ops), func(t *memTables, start, end int) error {
		for _, op := range ops[start:end] {
			t.operations[op.ID] = op
		}

		return nil
	})
}

// BulkPutPathsIndex implements Store.BulkPutPathsIndex.
func (m *Memory) BulkPutPathsIndex(ctx context.Context, paths []report.PathEntry) error {
	if len(paths) == 0 {
		return m.checkOpen()
	}

	return m.write(ctx, len(paths), func(t *memTables, start, end int) error {
		for _, p := range paths[start:end] {
			if old, ok := t.paths[p.ID]; ok && t.pathIDs[old] == p.ID {
				delete(t.pathIDs, old)
			}

			t.paths[p.ID] = p.Value
			t.pathIDs[p.Value] = p.ID
		}

		return nil
	})
}

// BulkPutStrings implements Store.BulkPutStrings.
func (m *Memory) BulkPutStrings(ctx context.Context, table string, entries []report.StringEntry) error {
	if len(entries) == 0 {
		return m.checkOpen()
	}

	return m.write(ctx, len(entries), func(t *memTables, start, end int) error {
		rows := t.strings[table]
		if rows == nil {
			rows = make(map[int64]string)
			t.strings[table] = rows
		}

		for _, e := range entries[start:end] {
			rows[e.ID] = e.Value
		}

		return nil
	})
}

// PutMetadata implements Store.PutMetadata.
func (m *Memory) PutMetadata(ctx context.Context, md report.Metadata) error {
	return m.write(ctx, 1, func(t *memTables, _, _ int) error {
		t.metadata = &md

		return nil
	})
}

// GetMetadata implements Store.GetMetadata.
func (m *Memory) GetMetadata(_ context.Context) (report.Metadata, error) {
	var md report.Metadata

	err := m.read(func(t *memTables) error {
		if t.metadata == nil {
			return fmt.Errorf("metadata: %w", ErrNotFound)
		}

		md = *t.metadata

		return nil
	})

	return md, err
}

// GetIssue implements Store.GetIssue.
func (m *Memory) GetIssue(_ context.Context, id int64) (report.StoredIssue, error) {
	var issue report.StoredIssue

	err := m.read(func(t *memTables) error {
		return m.unpackIssue(t, id, &issue)
	})

	return issue, err
}

// GetIssues implements Store.GetIssues.
func (m *Memory) GetIssues(_ context.Context, ids []int64) ([]report.StoredIssue, error) {
	out := make([]report.StoredIssue, len(ids))

	err := m.read(func(t *memTables) error {
		for i, id := range ids {
			if err := m.unpackIssue(t, id, &out[i]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (m *Memory) unpackIssue(t *memTables, id int64, issue *report.StoredIssue) error {
	blob, ok := t.issues[id]
	if !ok {
		return fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}

	err := unpackRecord(m.opts.Codec, blob, issue)
	if err != nil {
		return fmt.Errorf("issue %d: %w", id, err)
	}

	return nil
}

// ScanIssueIndex implements Store.ScanIssueIndex.
func (m *Memory) ScanIssueIndex(_ context.Context) ([]report.IssueIndex, error) {
	var rows []report.IssueIndex

	err := m.read(func(t *memTables) error {
		rows = sortedValues(t.index, func(r report.IssueIndex) int64 { return r.ID })

		return nil
	})

	return rows, err
}

// ScanOperations implements Store.ScanOperations.
func (m *Memory) ScanOperations(_ context.Context) ([]report.Operation, error) {
	var ops []report.Operation

	err := m.read(func(t *memTables) error {
		ops = sortedValues(t.operations, func(op report.Operation) int64 { return op.ID })

		return nil
	})

	return ops, err
}

// ScanPaths implements Store.ScanPaths.
func (m *Memory) ScanPaths(_ context.Context) ([]report.PathEntry, error) {
	var paths []report.PathEntry

	err := m.read(func(t *memTables) error {
		paths = entries(t.paths)

		return nil
	})

	return paths, err
}

// FindPath implements Store.FindPath.
func (m *Memory) FindPath(_ context.Context, value string) (int64, error) {
	var id int64

	err := m.read(func(t *memTables) error {
		found, ok := t.pathIDs[value]
		if !ok {
			return fmt.Errorf("path %q: %w", value, ErrNotFound)
		}

		id = found

		return nil
	})

	return id, err
}

// ScanStrings implements Store.ScanStrings.
func (m *Memory) ScanStrings(_ context.Context, table string) ([]report.StringEntry, error) {
	var out []report.StringEntry

	err := m.read(func(t *memTables) error {
		out = entries(t.strings[table])

		return nil
	})

	return out, err
}

func sortedValues[V any](rows map[int64]V, id func(V) int64) []V {
	out := slices.Collect(maps.Values(rows))
	slices.SortFunc(out, func(a, b V) int { return cmp.Compare(id(a), id(b)) })

	return out
}

func entries(rows map[int64]string) []report.StringEntry {
	out := make([]report.StringEntry, 0, len(rows))
	for _, id := range slices.Sorted(maps.Keys(rows)) {
		out = append(out, report.StringEntry{ID: id, Value: rows[id]})
	}

	return out
}
