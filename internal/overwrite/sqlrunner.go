package overwrite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// sqlWriteRe rejects any statement carrying a write keyword, wherever
// it appears and whatever its case.
var sqlWriteRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE|MERGE)\b`)

// ReadOnlyViolationError reports a rejected write statement.
type ReadOnlyViolationError struct {
	Source  string
	Keyword string
}

func (e *ReadOnlyViolationError) Error() string {
	return fmt.Sprintf("overwrite: source %q is read-only, statement contains %s", e.Source, e.Keyword)
}

// CheckReadOnly validates that a statement is a plain SELECT with no
// write keywords anywhere in it.
func CheckReadOnly(source, query string) error {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return &ReadOnlyViolationError{Source: source, Keyword: "non-SELECT statement"}
	}
	if m := sqlWriteRe.FindString(trimmed); m != "" {
		return &ReadOnlyViolationError{Source: source, Keyword: strings.ToUpper(m)}
	}
	return nil
}

// SQLRunner executes read-only queries against SQL sources. Connections
// open lazily per source and are reused.
type SQLRunner struct {
	driver string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewSQLRunner creates a runner for the given database/sql driver,
// "sqlite" by default.
func NewSQLRunner(driver string) *SQLRunner {
	if driver == "" {
		driver = "sqlite"
	}
	return &SQLRunner{driver: driver, dbs: make(map[string]*sql.DB)}
}

// Run executes one SELECT and returns the first row, column-keyed.
// Read-only sources reject anything that is not a plain SELECT.
func (r *SQLRunner) Run(ctx context.Context, src *DataSource, query string, params map[string]string) (*QueryResult, error) {
	if src.ReadOnly {
		if err := CheckReadOnly(src.Name, query); err != nil {
			return nil, err
		}
	}

	db, err := r.open(src)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("overwrite: query source %q: %w", src.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("overwrite: columns: %w", err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("overwrite: scan source %q: %w", src.Name, err)
		}
		return &QueryResult{}, nil
	}

	raw := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("overwrite: scan source %q: %w", src.Name, err)
	}

	values := make(map[string]string, len(cols))
	for i, c := range cols {
		if raw[i].Valid {
			values[c] = raw[i].String
		}
	}
	return &QueryResult{Values: values}, nil
}

func (r *SQLRunner) open(src *DataSource) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[src.Name]; ok {
		return db, nil
	}
	db, err := sql.Open(r.driver, src.Connection)
	if err != nil {
		return nil, fmt.Errorf("overwrite: open source %q: %w", src.Name, err)
	}
	r.dbs[src.Name] = db
	return db, nil
}

// Close closes every open connection.
func (r *SQLRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for name, db := range r.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = fmt.Errorf("overwrite: close source %q: %w", name, err)
		}
		delete(r.dbs, name)
	}
	return first
}
