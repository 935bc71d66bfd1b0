// Package store persists the normalized tables of one loaded report: issue
// bodies, the compact issue index, operations, the paths index, interned
// string tables and the report metadata.
//
// Two backends are provided. Memory keeps everything in process; SQLite uses
// an embedded database file (or :memory:) through modernc.org/sqlite. Both
// encode issue bodies with a Codec and compress them with LZ4.
package store

import (
	"context"
	"errors"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"
)

// Errors returned by every backend.
var (
	ErrNotOpen  = errors.New("store is not open")
	ErrNotFound = errors.New("record not found")
)

// Names of the interned string tables.
const (
	TableStrings              = "strings"
	TableInjectionDescription = "injectionDescriptions"
	TableResponseDescription  = "responseDescriptions"
)

// DefaultBatchSize is the number of rows written per transaction.
const DefaultBatchSize = 500

// Store is the table storage of one report. Bulk puts upsert by id with last
// write wins. Implementations are safe for one writer plus concurrent readers.
type Store interface {
	Open(ctx context.Context) error
	Close() error
	// Clear empties every table atomically: readers observe either the old
	// contents or empty tables.
	Clear(ctx context.Context) error

	BulkPutIssues(ctx context.Context, issues []report.StoredIssue) error
	BulkPutIssueIndex(ctx context.Context, rows []report.IssueIndex) error
	BulkPutOperations(ctx context.Context, ops []report.Operation) error
	BulkPutPathsIndex(ctx context.Context, paths []report.PathEntry) error
	BulkPutStrings(ctx context.Context, table string, entries []report.StringEntry) error
	PutMetadata(ctx context.Context, md report.Metadata) error

	GetMetadata(ctx context.Context) (report.Metadata, error)
	GetIssue(ctx context.Context, id int64) (report.StoredIssue, error)
	// GetIssues returns the issues in the order of ids.
	GetIssues(ctx context.Context, ids []int64) ([]report.StoredIssue, error)
	// ScanIssueIndex returns every index row ordered by id.
	ScanIssueIndex(ctx context.Context) ([]report.IssueIndex, error)
	// ScanOperations returns every operation ordered by id.
	ScanOperations(ctx context.Context) ([]report.Operation, error)
	// ScanPaths returns the paths index ordered by id.
	ScanPaths(ctx context.Context) ([]report.PathEntry, error)
	FindPath(ctx context.Context, value string) (int64, error)
	// ScanStrings returns one interned string table ordered by id.
	ScanStrings(ctx context.Context, table string) ([]report.StringEntry, error)

	// Generation increases after every successful write or clear, including
	// writes made through another handle on the same database.
	Generation(ctx context.Context) (uint64, error)
}

// Options configures a backend.
type Options struct {
	// BatchSize is the number of rows per write batch.
	BatchSize int
	// Codec encodes issue bodies. Nil selects gob.
	Codec Codec
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}

	if o.Codec == nil {
		o.Codec = GobCodec{}
	}

	return o
}

// batches splits n rows into [start, end) ranges of at most size rows.
func batches(n, size int) [][2]int {
	out := make([][2]int, 0, (n+size-1)/size)

	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}

	return out
}
