package store

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowcsv "github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/verte-zerg/sparcsviz/internal/model"
)

const ingestBatchSize = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// loadParquet reads the whole parquet file as an Arrow table and copies it
// into the source table.
func (s *Store) loadParquet(ctx context.Context, path string) error {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return fmt.Errorf("open parquet: %w", err)
	}
	defer func() {
		if cerr := rdr.Close(); cerr != nil {
			// Best-effort reader close.
			_ = cerr
		}
	}()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: ingestBatchSize}, memory.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("parquet reader: %w", err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return fmt.Errorf("read parquet table: %w", err)
	}
	defer tbl.Release()

	if err := s.createTable(ctx, tbl.Schema()); err != nil {
		return err
	}
	tr := array.NewTableReader(tbl, ingestBatchSize)
	defer tr.Release()
	return s.insertRecords(ctx, tbl.Schema(), func() (arrow.Record, bool) {
		if !tr.Next() {
			return nil, false
		}
		return tr.Record(), true
	}, tr.Err)
}

// loadCSV reads a headered CSV file, inferring column types except for the
// columns listed in textColumns.
func (s *Store) loadCSV(ctx context.Context, path string, textColumns []string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort file close.
			_ = cerr
		}
	}()

	r, err := stripBOM(f)
	if err != nil {
		return fmt.Errorf("read csv: %w", err)
	}
	opts := []arrowcsv.Option{
		arrowcsv.WithHeader(true),
		arrowcsv.WithChunk(ingestBatchSize),
		arrowcsv.WithNullReader(true, ""),
	}
	if len(textColumns) > 0 {
		types := make(map[string]arrow.DataType, len(textColumns))
		for _, name := range textColumns {
			types[name] = arrow.BinaryTypes.String
		}
		opts = append(opts, arrowcsv.WithColumnTypes(types))
	}
	cr := arrowcsv.NewInferringReader(r, opts...)
	defer cr.Release()

	// The schema is only known after the first chunk; the table must exist
	// before the insert transaction takes the only connection.
	if !cr.Next() {
		if err := cr.Err(); err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		return fmt.Errorf("csv %s has no data rows", path)
	}
	first := cr.Record()
	first.Retain()
	defer first.Release()
	if err := s.createTable(ctx, first.Schema()); err != nil {
		return err
	}

	pending := true
	return s.insertRecords(ctx, first.Schema(), func() (arrow.Record, bool) {
		if pending {
			pending = false
			return first, true
		}
		if !cr.Next() {
			return nil, false
		}
		return cr.Record(), true
	}, cr.Err)
}

func stripBOM(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if bytes.Equal(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, err
		}
	}
	return br, nil
}

// loadResultTable copies a ResultTable into the source table.
func (s *Store) loadResultTable(ctx context.Context, tbl *model.ResultTable) error {
	cols := tbl.Columns()
	defs := make([]string, len(cols))
	names := make([]string, len(cols))
	for i, col := range cols {
		affinity := "TEXT"
		if col.Type == model.Quantitative {
			affinity = "NUMERIC"
		}
		defs[i] = QuoteIdent(col.Name) + " " + affinity
		names[i] = col.Name
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, QuoteIdent(s.table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return s.withInsert(ctx, names, func(stmt *sql.Stmt) error {
		for i := 0; i < tbl.Len(); i++ {
			args := make([]any, len(names))
			for j, name := range names {
				args[j] = tbl.Value(i, name)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) createTable(ctx context.Context, schema *arrow.Schema) error {
	defs := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		defs[i] = QuoteIdent(field.Name) + " " + sqliteAffinity(field.Type)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, QuoteIdent(s.table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// insertRecords drains next() into the source table within one transaction.
func (s *Store) insertRecords(ctx context.Context, schema *arrow.Schema, next func() (arrow.Record, bool), errFn func() error) error {
	names := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		names[i] = field.Name
	}
	err := s.withInsert(ctx, names, func(stmt *sql.Stmt) error {
		for {
			rec, ok := next()
			if !ok {
				return nil
			}
			ncols := int(rec.NumCols())
			for row := 0; row < int(rec.NumRows()); row++ {
				args := make([]any, ncols)
				for c := 0; c < ncols; c++ {
					args[c] = arrowValue(rec.Column(c), row)
				}
				if _, err := stmt.ExecContext(ctx, args...); err != nil {
					return fmt.Errorf("insert row: %w", err)
				}
			}
		}
	})
	if err != nil {
		return err
	}
	if err := errFn(); err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	return nil
}

func (s *Store) withInsert(ctx context.Context, names []string, fn func(*sql.Stmt) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	stmt, err := tx.PrepareContext(ctx, insertSQL(s.table, names))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	if err = fn(stmt); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

func insertSQL(table string, names []string) string {
	quoted := make([]string, len(names))
	marks := make([]string, len(names))
	for i, name := range names {
		quoted[i] = QuoteIdent(name)
		marks[i] = "?"
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func sqliteAffinity(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64, arrow.BOOL:
		return "INTEGER"
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64, arrow.DECIMAL128, arrow.DECIMAL256:
		return "REAL"
	case arrow.DICTIONARY:
		return sqliteAffinity(dt.(*arrow.DictionaryType).ValueType)
	default:
		return "TEXT"
	}
}

// arrowValue extracts row i of col as a SQLite-bindable Go value.
func arrowValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Boolean:
		if a.Value(i) {
			return int64(1)
		}
		return int64(0)
	case *array.Dictionary:
		return arrowValue(a.Dictionary(), a.GetValueIndex(i))
	default:
		return col.ValueStr(i)
	}
}
