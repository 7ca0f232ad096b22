package store

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

const sampleCSV = "\xEF\xBB\xBFDischarge Year,Insurance Type,Number of Discharges,Average Length of Stay\n" +
	"2019,Medicare,120,3.0\n" +
	"2019,Medicaid,80,5.2 +\n" +
	"2020,Medicare,100,4.1\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestOpenCSVAndQuery(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "sparcs.csv", sampleCSV)
	st, err := Open(ctx, path, Options{TextColumns: []string{"Average Length of Stay"}})
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	cols, err := st.Columns(ctx)
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if len(cols) != 4 || cols[0] != "Discharge Year" {
		t.Fatalf("unexpected columns (BOM not stripped?): %q", cols)
	}

	res, err := st.Query(ctx, `SELECT "Discharge Year" AS year, SUM("Number of Discharges") AS discharges
		FROM discharges GROUP BY "Discharge Year" ORDER BY year`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", res.Len())
	}
	if !model.EqualValues(res.Value(0, "discharges"), 200) {
		t.Fatalf("expected 200 discharges in 2019, got %v", res.Value(0, "discharges"))
	}
	col, _ := res.Column("year")
	if col.Type != model.Quantitative {
		t.Fatalf("expected year inferred quantitative, got %s", col.Type)
	}

	stay, err := st.Query(ctx, `SELECT "Average Length of Stay" AS stay FROM discharges ORDER BY rowid`)
	if err != nil {
		t.Fatalf("query stay: %v", err)
	}
	if stay.Value(1, "stay") != "5.2 +" {
		t.Fatalf("expected stay text kept verbatim, got %v", stay.Value(1, "stay"))
	}
}

var insuranceDict = &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}

// writeParquet stores three discharge rows with a dictionary-encoded
// insurance column.
func writeParquet(t *testing.T) string {
	t.Helper()
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "Discharge Year", Type: arrow.PrimitiveTypes.Int64},
		{Name: "Insurance Type", Type: insuranceDict},
		{Name: "Number of Discharges", Type: arrow.PrimitiveTypes.Int64},
		{Name: "Average Length of Stay", Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{2019, 2019, 2020}, nil)
	ins := b.Field(1).(*array.BinaryDictionaryBuilder)
	for _, v := range []string{"Medicare", "Medicaid", "Medicare"} {
		if err := ins.AppendString(v); err != nil {
			t.Fatalf("append dictionary value: %v", err)
		}
	}
	b.Field(2).(*array.Int64Builder).AppendValues([]int64{15, 20, 25}, nil)
	b.Field(3).(*array.StringBuilder).AppendValues([]string{"3.0", "5.2 +", "4.1"}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w, err := pqarrow.NewFileWriter(schema, &buf, parquet.NewWriterProperties(),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		t.Fatalf("parquet writer: %v", err)
	}
	if err := w.Write(rec); err != nil {
		t.Fatalf("write record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return writeFile(t, "sparcs.parquet", buf.String())
}

func TestOpenParquetAndQuery(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, writeParquet(t), Options{})
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	res, err := st.Query(ctx, `SELECT "Insurance Type" AS i, SUM("Number of Discharges") AS n
		FROM discharges GROUP BY 1 ORDER BY 1`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Len() != 2 {
		t.Fatalf("expected 2 insurance types, got %d", res.Len())
	}
	if res.Value(0, "i") != "Medicaid" || !model.EqualValues(res.Value(0, "n"), 20) {
		t.Fatalf("unexpected first row %v %v", res.Value(0, "i"), res.Value(0, "n"))
	}
	if res.Value(1, "i") != "Medicare" || !model.EqualValues(res.Value(1, "n"), 40) {
		t.Fatalf("unexpected second row %v %v", res.Value(1, "i"), res.Value(1, "n"))
	}

	stay, err := st.Query(ctx, `SELECT "Average Length of Stay" AS stay FROM discharges ORDER BY rowid`)
	if err != nil {
		t.Fatalf("query stay: %v", err)
	}
	if stay.Value(1, "stay") != "5.2 +" {
		t.Fatalf("expected stay text kept verbatim, got %v", stay.Value(1, "stay"))
	}
}

func TestArrowValueDictionary(t *testing.T) {
	bldr := array.NewDictionaryBuilder(memory.NewGoAllocator(), insuranceDict).(*array.BinaryDictionaryBuilder)
	defer bldr.Release()
	for _, v := range []string{"Self-Pay", "Medicare", "Self-Pay"} {
		if err := bldr.AppendString(v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	bldr.AppendNull()
	arr := bldr.NewArray()
	defer arr.Release()

	want := []any{"Self-Pay", "Medicare", "Self-Pay", nil}
	for i, w := range want {
		if got := arrowValue(arr, i); got != w {
			t.Fatalf("row %d: expected %v, got %v", i, w, got)
		}
	}
	if got := sqliteAffinity(insuranceDict); got != "TEXT" {
		t.Fatalf("expected TEXT affinity for a string dictionary, got %s", got)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.parquet"), Options{})
	if !stderrors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
}

func TestOpenUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "data.json", "{}")
	_, err := Open(context.Background(), path, Options{})
	if !stderrors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
}

func TestOpenCorruptParquet(t *testing.T) {
	path := writeFile(t, "broken.parquet", "not a parquet file")
	_, err := Open(context.Background(), path, Options{})
	if !stderrors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
}

func TestOpenSQLiteReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sparcs.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("create db: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE discharges ("Discharge Year" INTEGER, "Number of Discharges" INTEGER)`,
		`INSERT INTO discharges VALUES (2018, 5), (2019, 7)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed db: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close seed db: %v", err)
	}

	st, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	res, err := st.Query(ctx, `SELECT COUNT(*) AS n FROM discharges`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !model.EqualValues(res.Value(0, "n"), 2) {
		t.Fatalf("expected 2 rows, got %v", res.Value(0, "n"))
	}
}

func TestOpenSQLiteMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("create db: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE other (x INTEGER)`); err != nil {
		t.Fatalf("seed db: %v", err)
	}
	_ = db.Close()

	_, err = Open(context.Background(), path, Options{})
	if !stderrors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
}

func openSample(t *testing.T) *Store {
	t.Helper()
	tbl := model.MustResultTable("sample", []model.Column{
		{Name: "Gender", Type: model.Nominal},
		{Name: "Number of Discharges", Type: model.Quantitative},
	}, []model.Row{
		{"Gender": "F", "Number of Discharges": 3},
		{"Gender": "M", "Number of Discharges": 4},
		{"Gender": "F", "Number of Discharges": 5},
	})
	st, err := OpenTable(context.Background(), tbl, Options{})
	if err != nil {
		t.Fatalf("open table: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestQuerySyntaxError(t *testing.T) {
	st := openSample(t)
	_, err := st.Query(context.Background(), `SELECT Gender, SUM( FROM discharges`)
	if !stderrors.Is(err, apperrors.ErrQuerySyntax) {
		t.Fatalf("expected QuerySyntaxError, got %v", err)
	}
	_, err = st.Query(context.Background(), `SELECT missing_column FROM discharges`)
	if !stderrors.Is(err, apperrors.ErrQuerySyntax) {
		t.Fatalf("expected QuerySyntaxError for unknown column, got %v", err)
	}
}

func TestQueryRejectsWrites(t *testing.T) {
	st := openSample(t)
	_, err := st.Query(context.Background(), `DELETE FROM discharges`)
	if !stderrors.Is(err, apperrors.ErrQuerySyntax) {
		t.Fatalf("expected write to be rejected, got %v", err)
	}
	_, err = st.Query(context.Background(), `WITH x AS (SELECT 1) INSERT INTO discharges SELECT 'X', 1 FROM x`)
	if err == nil {
		t.Fatalf("expected write through WITH to fail on a query-only connection")
	}
	res, err := st.Query(context.Background(), `SELECT COUNT(*) AS n FROM discharges`)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if !model.EqualValues(res.Value(0, "n"), 3) {
		t.Fatalf("expected table untouched, got %v rows", res.Value(0, "n"))
	}
}

func TestQueryGroupsInMemoryTable(t *testing.T) {
	st := openSample(t)
	res, err := st.Query(context.Background(), `SELECT Gender AS gender, SUM("Number of Discharges") AS discharges
		FROM discharges GROUP BY Gender ORDER BY Gender`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Len() != 2 {
		t.Fatalf("expected 2 groups, got %d", res.Len())
	}
	if !model.EqualValues(res.Value(0, "discharges"), 8) {
		t.Fatalf("expected F=8, got %v", res.Value(0, "discharges"))
	}
	col, _ := res.Column("gender")
	if col.Type != model.Nominal {
		t.Fatalf("expected gender nominal, got %s", col.Type)
	}
}
