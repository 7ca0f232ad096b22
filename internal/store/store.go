// Package store is the read-only columnar store adapter. A source file is
// opened once and aggregation queries run against it over a single SQLite
// connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// DefaultTable is the table name source rows are exposed under.
const DefaultTable = "discharges"

// Options tune how a source file is opened.
type Options struct {
	// Table is the table queries read from. Defaults to DefaultTable.
	Table string
	// TextColumns are kept as text during CSV ingest instead of having their
	// type inferred.
	TextColumns []string
}

// Store wraps the single read-only connection to the source data.
type Store struct {
	db     *sql.DB
	source string
	table  string
}

// Open opens a .parquet, .csv or SQLite (.db/.sqlite) source. Parquet and CSV
// files are materialized into an in-memory database before the connection
// is made query-only.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeStoreUnavailable,
			"source not readable", map[string]string{"path": path}, err)
	}
	if info.IsDir() {
		return nil, apperrors.WithMetadata(apperrors.CodeStoreUnavailable,
			"source is a directory", map[string]string{"path": path})
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".db", ".sqlite", ".sqlite3":
		return openSQLite(ctx, path, opts)
	case ".parquet", ".csv":
		st, err := openMemory()
		if err != nil {
			return nil, err
		}
		st.source = path
		st.table = opts.Table
		var loadErr error
		if ext == ".parquet" {
			loadErr = st.loadParquet(ctx, path)
		} else {
			loadErr = st.loadCSV(ctx, path, opts.TextColumns)
		}
		if loadErr != nil {
			if cerr := st.db.Close(); cerr != nil {
				// Best-effort close on load failure.
				_ = cerr
			}
			return nil, apperrors.WrapWithMetadata(apperrors.CodeStoreUnavailable,
				"load source", map[string]string{"path": path}, loadErr)
		}
		if err := st.seal(ctx); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeStoreUnavailable,
			"unsupported source format", map[string]string{"path": path, "ext": ext})
	}
}

// OpenTable exposes an in-memory ResultTable as the source table.
func OpenTable(ctx context.Context, tbl *model.ResultTable, opts Options) (*Store, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	st, err := openMemory()
	if err != nil {
		return nil, err
	}
	st.source = "memory:" + tbl.Name()
	st.table = opts.Table
	if err := st.loadResultTable(ctx, tbl); err != nil {
		if cerr := st.db.Close(); cerr != nil {
			// Best-effort close on load failure.
			_ = cerr
		}
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, "load table", err)
	}
	if err := st.seal(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func openMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, "open memory database", err)
	}
	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	return &Store{db: db}, nil
}

func openSQLite(ctx context.Context, path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeStoreUnavailable,
			"open database", map[string]string{"path": path}, err)
	}
	db.SetMaxOpenConns(1)
	st := &Store{db: db, source: path, table: opts.Table}
	var name string
	err = db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, opts.Table).Scan(&name)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on open failure.
			_ = cerr
		}
		return nil, apperrors.WrapWithMetadata(apperrors.CodeStoreUnavailable,
			"source table not found", map[string]string{"path": path, "table": opts.Table}, err)
	}
	return st, nil
}

// seal switches the connection to query-only so no write can reach it.
func (s *Store) seal(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA query_only = ON`); err != nil {
		if cerr := s.db.Close(); cerr != nil {
			// Best-effort close on failure.
			_ = cerr
		}
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "seal store", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Source describes where the data came from.
func (s *Store) Source() string { return s.source }

// Table returns the name queries should read from.
func (s *Store) Table() string { return s.table }

// Columns lists the source table's columns in declaration order.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info(%s)`, quoteLiteral(s.table)))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

// Query runs a read-only aggregation query. Column types of the result are
// inferred from the scanned values: numeric columns are quantitative,
// everything else nominal.
func (s *Store) Query(ctx context.Context, query string) (*model.ResultTable, error) {
	if !isReadQuery(query) {
		return nil, apperrors.WithMetadata(apperrors.CodeQuerySyntax,
			"only SELECT/WITH queries are allowed", map[string]string{"query": query})
	}
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeQuerySyntax,
			"prepare query", map[string]string{"query": query}, err)
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	numeric := make([]bool, len(names))
	for i := range numeric {
		numeric[i] = true
	}
	var result []model.Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(model.Row, len(names))
		for i, name := range names {
			v, err := model.NormalizeValue(values[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			if _, ok := model.ToFloat(v); v != nil && !ok {
				numeric[i] = false
			}
			row[name] = v
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	cols := make([]model.Column, len(names))
	for i, name := range names {
		cols[i] = model.Column{Name: name, Type: model.Nominal}
		if numeric[i] {
			cols[i].Type = model.Quantitative
		}
	}
	tbl, err := model.NewResultTable("query", cols, result)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeQuerySyntax,
			"shape query result", map[string]string{"query": query}, err)
	}
	return tbl, nil
}

func isReadQuery(query string) bool {
	q := strings.TrimSpace(strings.ToUpper(query))
	return strings.HasPrefix(q, "SELECT") || strings.HasPrefix(q, "WITH")
}

// QuoteIdent quotes a column or table name for SQLite.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
