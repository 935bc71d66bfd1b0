package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/scanreport/pkg/report"

	_ "modernc.org/sqlite" // database/sql driver "sqlite"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS issues (
	id   INTEGER PRIMARY KEY,
	body BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS issue_index (
	id          INTEGER PRIMARY KEY,
	path        INTEGER NOT NULL,
	method      INTEGER NOT NULL,
	criticality INTEGER NOT NULL,
	issue_type  INTEGER NOT NULL,
	operation   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS issue_index_path ON issue_index (path);
CREATE TABLE IF NOT EXISTS operations (
	id                  INTEGER PRIMARY KEY,
	operation_id        TEXT NOT NULL,
	path                TEXT NOT NULL,
	method              INTEGER NOT NULL,
	skipped             INTEGER NOT NULL,
	skip_reason         TEXT NOT NULL,
	happy_key           TEXT NOT NULL,
	happy_outcome       TEXT NOT NULL,
	happy_status        INTEGER NOT NULL,
	happy_response_time INTEGER NOT NULL,
	total_requests      INTEGER NOT NULL,
	total_expected      INTEGER NOT NULL,
	total_unexpected    INTEGER NOT NULL,
	total_failure       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS paths_index (
	id    INTEGER PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS paths_index_value ON paths_index (value);
CREATE TABLE IF NOT EXISTS strings (
	tbl   TEXT NOT NULL,
	id    INTEGER NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (tbl, id)
);
CREATE TABLE IF NOT EXISTS metadata (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	body BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS store_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	generation INTEGER NOT NULL
);
INSERT OR IGNORE INTO store_state (id, generation) VALUES (1, 0);
`

const (
	bumpGeneration   = `UPDATE store_state SET generation = generation + 1 WHERE id = 1`
	selectGeneration = `SELECT generation FROM store_state WHERE id = 1`
)

var sqliteTables = []string{"issues", "issue_index", "operations", "paths_index", "strings", "metadata"}

// SQLite is a Store backed by an embedded SQLite database.
type SQLite struct {
	dsn  string
	opts Options

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLite creates a SQLite store for the database file at path. Use
// MemoryDSN for a private in-memory database.
func NewSQLite(path string, opts Options) *SQLite {
	return &SQLite{dsn: path, opts: opts.withDefaults()}
}

// Open implements Store.Open. It creates the schema when missing.
func (s *SQLite) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.connString())
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	if s.dsn == MemoryDSN {
		// Every pooled connection would get its own private database.
		db.SetMaxOpenConns(1)
	}

	_, err = db.ExecContext(ctx, sqliteSchema)
	if err != nil {
		return errors.Join(fmt.Errorf("create schema: %w", err), db.Close())
	}

	s.db = db

	return nil
}

func (s *SQLite) connString() string {
	if s.dsn == MemoryDSN {
		return s.dsn
	}

	return "file:" + s.dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

// Close implements Store.Close.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

// Generation implements Store.Generation. The counter lives in the database,
// so a load committed by another process is seen here as well.
func (s *SQLite) Generation(ctx context.Context) (uint64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	var gen int64

	err = db.QueryRowContext(ctx, selectGeneration).Scan(&gen)
	if err != nil {
		return 0, fmt.Errorf("read generation: %w", err)
	}

	return uint64(gen), nil
}

func (s *SQLite) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	return s.db, nil
}

// inTx runs fn in one transaction that also bumps the stored generation.
func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	err = fn(tx)
	if err == nil {
		_, err = tx.ExecContext(ctx, bumpGeneration)
		if err != nil {
			err = fmt.Errorf("bump generation: %w", err)
		}
	}

	if err != nil {
		return errors.Join(err, tx.Rollback())
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// putRows upserts n rows in transactions of BatchSize rows.
func (s *SQLite) putRows(ctx context.Context, query string, n int, args func(i int) ([]any, error)) error {
	if n == 0 {
		_, err := s.handle()

		return err
	}

	for _, b := range batches(n, s.opts.BatchSize) {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, query)
			if err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			defer stmt.Close()

			for i := b[0]; i < b[1]; i++ {
				values, err := args(i)
				if err != nil {
					return err
				}

				_, err = stmt.ExecContext(ctx, values...)
				if err != nil {
					return fmt.Errorf("exec: %w", err)
				}
			}

			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Clear implements Store.Clear in a single transaction.
func (s *SQLite) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range sqliteTables {
			_, err := tx.ExecContext(ctx, "DELETE FROM "+table)
			if err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		return nil
	})
}

// BulkPutIssues implements Store.BulkPutIssues.
func (s *SQLite) BulkPutIssues(ctx context.Context, issues []report.StoredIssue) error {
	return s.putRows(ctx, `INSERT OR REPLACE INTO issues (id, body) VALUES (?, ?)`, len(issues),
		func(i int) ([]any, error) {
			blob, err := packRecord(s.opts.Codec, &issues[i])
			if err != nil {
				return nil, fmt.Errorf("pack issue %d: %w", issues[i].ID, err)
			}

			return []any{issues[i].ID, blob}, nil
		})
}

// BulkPutIssueIndex implements Store.BulkPutIssueIndex.
func (s *SQLite) BulkPutIssueIndex(ctx context.Context, rows []report.IssueIndex) error {
	return s.putRows(ctx, `INSERT OR REPLACE INTO issue_index
		(id, path, method, criticality, issue_type, operation) VALUES (?, ?, ?, ?, ?, ?)`, len(rows),
		func(i int) ([]any, error) {
			r := rows[i]

			return []any{r.ID, r.Path, int(r.Method), r.Criticality, int(r.IssueType), r.Operation}, nil
		})
}

// BulkPutOperations implements Store.BulkPutOperations.
func (s *SQLite) BulkPutOperations(ctx context.Context, ops []report.Operation) error {
	return s.putRows(ctx, `INSERT OR REPLACE INTO operations
		(id, operation_id, path, method, skipped, skip_reason, happy_key, happy_outcome, happy_status,
		 happy_response_time, total_requests, total_expected, total_unexpected, total_failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(ops),
		func(i int) ([]any, error) {
			op := ops[i]

			return []any{
				op.ID, op.OperationID, op.Path, int(op.Method), op.Skipped, op.SkipReason,
				op.HappyPath.Key, op.HappyPath.Outcome, op.HappyPath.HTTPStatusCode, op.HappyPath.ResponseTime,
				op.TotalRequestCount, op.TotalExpected, op.TotalUnexpected, op.TotalFailure,
			}, nil
		})
}

// BulkPutPathsIndex implements Store.BulkPutPathsIndex.
func (s *SQLite) BulkPutPathsIndex(ctx context.Context, paths []report.PathEntry) error {
	return s.putRows(ctx, `INSERT OR REPLACE INTO paths_index (id, value) VALUES (?, ?)`, len(paths),
		func(i int) ([]any, error) {
			return []any{paths[i].ID, paths[i].Value}, nil
		})
}

// BulkPutStrings implements Store.BulkPutStrings.
func (s *SQLite) BulkPutStrings(ctx context.Context, table string, entries []report.StringEntry) error {
	return s.putRows(ctx, `INSERT OR REPLACE INTO strings (tbl, id, value) VALUES (?, ?, ?)`, len(entries),
		func(i int) ([]any, error) {
			return []any{table, entries[i].ID, entries[i].Value}, nil
		})
}

// PutMetadata implements Store.PutMetadata.
func (s *SQLite) PutMetadata(ctx context.Context, md report.Metadata) error {
	blob, err := packRecord(s.opts.Codec, &md)
	if err != nil {
		return fmt.Errorf("pack metadata: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO metadata (id, body) VALUES (1, ?)`, blob)
		if err != nil {
			return fmt.Errorf("put metadata: %w", err)
		}

		return nil
	})
}

// GetMetadata implements Store.GetMetadata.
func (s *SQLite) GetMetadata(ctx context.Context) (report.Metadata, error) {
	var md report.Metadata

	db, err := s.handle()
	if err != nil {
		return md, err
	}

	var blob []byte

	err = db.QueryRowContext(ctx, `SELECT body FROM metadata WHERE id = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return md, fmt.Errorf("metadata: %w", ErrNotFound)
	}

	if err != nil {
		return md, fmt.Errorf("get metadata: %w", err)
	}

	err = unpackRecord(s.opts.Codec, blob, &md)

	return md, err
}

// GetIssue implements Store.GetIssue.
func (s *SQLite) GetIssue(ctx context.Context, id int64) (report.StoredIssue, error) {
	var issue report.StoredIssue

	db, err := s.handle()
	if err != nil {
		return issue, err
	}

	var blob []byte

	err = db.QueryRowContext(ctx, `SELECT body FROM issues WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return issue, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}

	if err != nil {
		return issue, fmt.Errorf("get issue %d: %w", id, err)
	}

	err = unpackRecord(s.opts.Codec, blob, &issue)
	if err != nil {
		return issue, fmt.Errorf("issue %d: %w", id, err)
	}

	return issue, nil
}

// GetIssues implements Store.GetIssues with one IN query per batch.
func (s *SQLite) GetIssues(ctx context.Context, ids []int64) ([]report.StoredIssue, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]report.StoredIssue, len(ids))

	for _, b := range batches(len(ids), s.opts.BatchSize) {
		chunk := ids[b[0]:b[1]]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		query := `SELECT id, body FROM issues WHERE id IN (?` + strings.Repeat(", ?", len(chunk)-1) + `)`

		err = s.scanIssues(ctx, db, query, args, byID)
		if err != nil {
			return nil, err
		}
	}

	out := make([]report.StoredIssue, len(ids))

	for i, id := range ids {
		issue, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("issue %d: %w", id, ErrNotFound)
		}

		out[i] = issue
	}

	return out, nil
}

func (s *SQLite) scanIssues(ctx context.Context, db *sql.DB, query string, args []any,
	into map[int64]report.StoredIssue,
) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			blob []byte
		)

		err = rows.Scan(&id, &blob)
		if err != nil {
			return fmt.Errorf("scan issue: %w", err)
		}

		var issue report.StoredIssue

		err = unpackRecord(s.opts.Codec, blob, &issue)
		if err != nil {
			return fmt.Errorf("issue %d: %w", id, err)
		}

		into[id] = issue
	}

	return rows.Err()
}

// ScanIssueIndex implements Store.ScanIssueIndex.
func (s *SQLite) ScanIssueIndex(ctx context.Context) ([]report.IssueIndex, error) {
	return scanAll(ctx, s, `SELECT id, path, method, criticality, issue_type, operation FROM issue_index ORDER BY id`,
		nil, func(rows *sql.Rows) (report.IssueIndex, error) {
			var r report.IssueIndex

			err := rows.Scan(&r.ID, &r.Path, &r.Method, &r.Criticality, &r.IssueType, &r.Operation)

			return r, err
		})
}

// ScanOperations implements Store.ScanOperations.
func (s *SQLite) ScanOperations(ctx context.Context) ([]report.Operation, error) {
	return scanAll(ctx, s, `SELECT id, operation_id, path, method, skipped, skip_reason, happy_key, happy_outcome,
		happy_status, happy_response_time, total_requests, total_expected, total_unexpected, total_failure
		FROM operations ORDER BY id`,
		nil, func(rows *sql.Rows) (report.Operation, error) {
			var op report.Operation

			err := rows.Scan(&op.ID, &op.OperationID, &op.Path, &op.Method, &op.Skipped, &op.SkipReason,
				&op.HappyPath.Key, &op.HappyPath.Outcome, &op.HappyPath.HTTPStatusCode, &op.HappyPath.ResponseTime,
				&op.TotalRequestCount, &op.TotalExpected, &op.TotalUnexpected, &op.TotalFailure)

			return op, err
		})
}

// ScanPaths implements Store.ScanPaths.
func (s *SQLite) ScanPaths(ctx context.Context) ([]report.PathEntry, error) {
	return scanAll(ctx, s, `SELECT id, value FROM paths_index ORDER BY id`, nil, scanEntry)
}

// FindPath implements Store.FindPath.
func (s *SQLite) FindPath(ctx context.Context, value string) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	var id int64

	err = db.QueryRowContext(ctx, `SELECT id FROM paths_index WHERE value = ? ORDER BY id LIMIT 1`, value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("path %q: %w", value, ErrNotFound)
	}

	if err != nil {
		return 0, fmt.Errorf("find path: %w", err)
	}

	return id, nil
}

// ScanStrings implements Store.ScanStrings.
func (s *SQLite) ScanStrings(ctx context.Context, table string) ([]report.StringEntry, error) {
	return scanAll(ctx, s, `SELECT id, value FROM strings WHERE tbl = ? ORDER BY id`, []any{table}, scanEntry)
}

func scanEntry(rows *sql.Rows) (report.StringEntry, error) {
	var e report.StringEntry

	err := rows.Scan(&e.ID, &e.Value)

	return e, err
}

func scanAll[T any](ctx context.Context, s *SQLite, query string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []T

	for rows.Next() {
		item, scanErr := scan(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan: %w", scanErr)
		}

		out = append(out, item)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return out, nil
}
