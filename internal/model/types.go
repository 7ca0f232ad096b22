// Package model defines shared data structures.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType is the measurement type of a column as understood by encodings.
type FieldType string

const (
	Nominal      FieldType = "nominal"
	Ordinal      FieldType = "ordinal"
	Quantitative FieldType = "quantitative"
	Temporal     FieldType = "temporal"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case Nominal, Ordinal, Quantitative, Temporal:
		return true
	}
	return false
}

// Column names and types one column of a ResultTable.
type Column struct {
	Name string
	Type FieldType
}

// Row maps column name to a scalar: string, float64, int64 or nil.
type Row map[string]any

// ResultTable is an immutable, ordered set of rows with typed columns.
type ResultTable struct {
	name    string
	columns []Column
	index   map[string]int
	rows    []Row
}

// NewResultTable copies columns and rows into a new table. Row values are
// normalized so integers become int64 and floats float64.
func NewResultTable(name string, columns []Column, rows []Row) (*ResultTable, error) {
	t := &ResultTable{
		name:    name,
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
		rows:    make([]Row, 0, len(rows)),
	}
	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("table %s: column %d has no name", name, i)
		}
		if !col.Type.Valid() {
			return nil, fmt.Errorf("table %s: column %s has invalid type %q", name, col.Name, col.Type)
		}
		if _, dup := t.index[col.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %s", name, col.Name)
		}
		t.columns[i] = col
		t.index[col.Name] = i
	}
	for ri, row := range rows {
		out := make(Row, len(columns))
		for key, value := range row {
			if _, ok := t.index[key]; !ok {
				return nil, fmt.Errorf("table %s: row %d has unknown column %s", name, ri, key)
			}
			norm, err := NormalizeValue(value)
			if err != nil {
				return nil, fmt.Errorf("table %s: row %d column %s: %w", name, ri, key, err)
			}
			out[key] = norm
		}
		for _, col := range columns {
			if _, ok := out[col.Name]; !ok {
				out[col.Name] = nil
			}
		}
		t.rows = append(t.rows, out)
	}
	return t, nil
}

// MustResultTable is NewResultTable for literal tables known to be valid.
func MustResultTable(name string, columns []Column, rows []Row) *ResultTable {
	t, err := NewResultTable(name, columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table name.
func (t *ResultTable) Name() string { return t.name }

// Len returns the number of rows.
func (t *ResultTable) Len() int { return len(t.rows) }

// Columns returns a copy of the column list.
func (t *ResultTable) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column looks up a column by name.
func (t *ResultTable) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// HasColumn reports whether the table has the named column.
func (t *ResultTable) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Require returns the names missing from the table, in argument order.
func (t *ResultTable) Require(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Row returns a copy of row i.
func (t *ResultTable) Row(i int) Row {
	out := make(Row, len(t.rows[i]))
	for k, v := range t.rows[i] {
		out[k] = v
	}
	return out
}

// Rows returns copies of all rows.
func (t *ResultTable) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i := range t.rows {
		out[i] = t.Row(i)
	}
	return out
}

// Value returns the value of column name at row i.
func (t *ResultTable) Value(i int, name string) any {
	return t.rows[i][name]
}

// Distinct returns the sorted distinct non-null values of a column. Numbers
// sort numerically, everything else by string form.
func (t *ResultTable) Distinct(name string) []any {
	seen := map[string]struct{}{}
	var out []any
	for _, row := range t.rows {
		v := row[name]
		if v == nil {
			continue
		}
		key := "s:" + fmt.Sprintf("%v", v)
		if f, ok := ToFloat(v); ok {
			key = fmt.Sprintf("n:%v", f)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareValues(out[i], out[j]) < 0
	})
	return out
}

// KeyOf renders the values of the given columns as a stable tuple key.
func (t *ResultTable) KeyOf(i int, columns []string) string {
	parts := make([]string, len(columns))
	for j, col := range columns {
		parts[j] = fmt.Sprintf("%v", t.rows[i][col])
	}
	return strings.Join(parts, "\x1f")
}

// NormalizeValue converts supported scalar types into string, float64, int64
// or nil.
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToFloat converts numeric values to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

// CompareValues orders two scalars: nil first, then numbers, then strings.
func CompareValues(a, b any) int {
	af, aNum := ToFloat(a)
	bf, bNum := ToFloat(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case aNum && bNum:
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// EqualValues reports whether two scalars are equal, comparing numbers by
// value regardless of int64/float64 representation.
func EqualValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := ToFloat(a)
	bf, bNum := ToFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
