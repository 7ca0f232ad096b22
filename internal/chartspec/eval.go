package chartspec

import (
	"fmt"

	"github.com/verte-zerg/sparcsviz/internal/model"
)

// State is a snapshot of interactive state used to evaluate channels
// outside a renderer. Selections absent from the map are empty.
type State struct {
	Selections map[string]func(model.Row) bool
	Values     map[string]any
}

// Eval returns the value the channel takes for row. Aggregated field
// channels have no per-row value.
func (c Channel) Eval(row model.Row, st State) (any, error) {
	switch c.kind {
	case KindLiteral:
		return c.value, nil
	case KindField:
		if c.field.Aggregate != "" {
			return nil, fmt.Errorf("aggregated channel %s(%s) has no per-row value", c.field.Aggregate, c.field.Field)
		}
		v, ok := row[c.field.Field]
		if !ok {
			return nil, fmt.Errorf("row has no field %q", c.field.Field)
		}
		return v, nil
	case KindCondition:
		ok, err := c.cond.pred.Holds(row, st)
		if err != nil {
			return nil, err
		}
		if ok {
			return c.cond.then.Eval(row, st)
		}
		return c.cond.els.Eval(row, st)
	}
	return nil, fmt.Errorf("empty channel")
}

// Holds reports whether the predicate is true for row.
func (p Predicate) Holds(row model.Row, st State) (bool, error) {
	switch p.kind {
	case predParam:
		if sel, ok := st.Selections[p.param]; ok {
			return sel(row), nil
		}
		if v, ok := st.Values[p.param]; ok {
			b, _ := v.(bool)
			return b, nil
		}
		if p.empty != nil {
			return *p.empty, nil
		}
		return true, nil
	case predField:
		v, ok := row[p.field]
		if !ok {
			return false, fmt.Errorf("row has no field %q", p.field)
		}
		if v == nil {
			return false, nil
		}
		cmp := model.CompareValues(v, p.value)
		switch p.op {
		case "equal":
			return model.EqualValues(v, p.value), nil
		case "lt":
			return cmp < 0, nil
		case "lte":
			return cmp <= 0, nil
		case "gt":
			return cmp > 0, nil
		case "gte":
			return cmp >= 0, nil
		}
		return false, fmt.Errorf("unknown field predicate %q", p.op)
	case predFieldParam:
		want, ok := st.Values[p.param]
		if !ok {
			return false, fmt.Errorf("param %q has no value", p.param)
		}
		return model.EqualValues(row[p.field], want), nil
	}
	return false, fmt.Errorf("empty predicate")
}
