package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

var tracer = otel.Tracer("github.com/verte-zerg/sparcsviz/internal/aggregate")

// Source is the subset of the store the aggregation layer needs.
type Source interface {
	Query(ctx context.Context, query string) (*model.ResultTable, error)
	Columns(ctx context.Context) ([]string, error)
	Table() string
}

// QueryStats describes one finished aggregation.
type QueryStats struct {
	Name     string
	Rows     int
	Duration time.Duration
	Err      error
}

// LoadOptions configure Load.
type LoadOptions struct {
	// Queries overrides the default aggregation set.
	Queries []Query
	// OnQuery is called after each query, successful or not.
	OnQuery func(QueryStats)
}

// Catalog holds the cached result tables. It is immutable once built and
// safe to share between goroutines.
type Catalog struct {
	tables map[string]*model.ResultTable
	names  []string
}

// NewCatalog builds a catalog from tables keyed by their names.
func NewCatalog(tables ...*model.ResultTable) (*Catalog, error) {
	c := &Catalog{tables: make(map[string]*model.ResultTable, len(tables))}
	for _, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("nil table")
		}
		if _, dup := c.tables[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate table %s", t.Name())
		}
		c.tables[t.Name()] = t
		c.names = append(c.names, t.Name())
	}
	sort.Strings(c.names)
	return c, nil
}

// Table returns a cached table by name.
func (c *Catalog) Table(name string) (*model.ResultTable, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Names returns the sorted table names.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of tables.
func (c *Catalog) Len() int { return len(c.names) }

// Load checks the source schema and runs every query eagerly. Any failure is
// reported as AggregationFailed for the query at fault; no partial catalog is
// returned.
func Load(ctx context.Context, src Source, opts LoadOptions) (*Catalog, error) {
	ctx, span := tracer.Start(ctx, "aggregate.Load")
	defer span.End()

	queries := opts.Queries
	if queries == nil {
		queries = Queries()
	}

	available, err := src.Columns(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read source schema")
		return nil, apperrors.Wrap(apperrors.CodeAggregationFailed, "read source schema", err)
	}
	if err := checkSchema(queries, available); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema drift")
		return nil, err
	}

	tables := make([]*model.ResultTable, 0, len(queries))
	for _, q := range queries {
		start := time.Now()
		tbl, err := runQuery(ctx, src, q)
		stats := QueryStats{Name: q.Name, Duration: time.Since(start), Err: err}
		if tbl != nil {
			stats.Rows = tbl.Len()
		}
		if opts.OnQuery != nil {
			opts.OnQuery(stats)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, q.Name)
			return nil, err
		}
		tables = append(tables, tbl)
	}

	cat, err := NewCatalog(tables...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAggregationFailed, "assemble catalog", err)
	}
	span.SetAttributes(attribute.Int("aggregate.tables", cat.Len()))
	return cat, nil
}

func runQuery(ctx context.Context, src Source, q Query) (*model.ResultTable, error) {
	ctx, span := tracer.Start(ctx, "aggregate.query")
	defer span.End()
	span.SetAttributes(attribute.String("aggregate.query", q.Name))

	res, err := src.Query(ctx, q.Render(src.Table()))
	if err != nil {
		return nil, failed(q.Name, err)
	}
	got := res.Columns()
	if len(got) != len(q.Columns) {
		return nil, failed(q.Name, fmt.Errorf("expected %d columns, got %d", len(q.Columns), len(got)))
	}
	for i, col := range q.Columns {
		if got[i].Name != col.Name {
			return nil, failed(q.Name, fmt.Errorf("column %d: expected %s, got %s", i, col.Name, got[i].Name))
		}
	}
	tbl, err := model.NewResultTable(q.Name, q.Columns, res.Rows())
	if err != nil {
		return nil, failed(q.Name, err)
	}
	if err := checkUniqueKeys(tbl, q.Keys); err != nil {
		return nil, failed(q.Name, err)
	}
	span.SetAttributes(attribute.Int("aggregate.rows", tbl.Len()))
	return tbl, nil
}

// checkUniqueKeys verifies no two rows share a group-by key tuple.
func checkUniqueKeys(tbl *model.ResultTable, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]int, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		k := tbl.KeyOf(i, keys)
		if prev, ok := seen[k]; ok {
			return fmt.Errorf("rows %d and %d share group key %v", prev, i, keys)
		}
		seen[k] = i
	}
	return nil
}

// checkSchema fails before any query runs when the source lacks a column.
// The error names the first query that reads a missing column and lists
// every missing column.
func checkSchema(queries []Query, available []string) error {
	have := make(map[string]struct{}, len(available))
	for _, c := range available {
		have[c] = struct{}{}
	}
	var missing []string
	for _, c := range SourceColumns(queries) {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	for _, q := range queries {
		for _, c := range q.Source {
			if _, ok := have[c]; !ok {
				return failed(q.Name, fmt.Errorf("source columns missing: %q", missing))
			}
		}
	}
	return nil
}

func failed(query string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeAggregationFailed,
		"aggregation "+query+" failed", map[string]string{"query_name": query}, cause)
}
