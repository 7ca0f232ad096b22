package chartspec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/pretty"
	"github.com/zeebo/xxh3"

	"github.com/verte-zerg/sparcsviz/internal/model"
)

// SchemaURL is the Vega-Lite schema documents declare.
const SchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

// Serialize validates the document and renders it as compact canonical
// JSON: object keys sorted, no HTML escaping, datasets named by content.
// The same document always yields the same bytes.
func (d *Document) Serialize() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	tree, err := d.tree()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Pretty is Serialize with indentation.
func (d *Document) Pretty() ([]byte, error) {
	b, err := d.Serialize()
	if err != nil {
		return nil, err
	}
	return pretty.PrettyOptions(b, &pretty.Options{Width: 100, Indent: "  ", SortKeys: true}), nil
}

// DatasetName returns the content-addressed name a table is stored under.
func DatasetName(tbl *model.ResultTable) (string, error) {
	_, name, err := datasetRows(tbl)
	return name, err
}

func datasetRows(tbl *model.ResultTable) ([]model.Row, string, error) {
	rows := tbl.Rows()
	if rows == nil {
		rows = []model.Row{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, "", fmt.Errorf("encode table %s: %w", tbl.Name(), err)
	}
	return rows, fmt.Sprintf("data-%016x", xxh3.Hash(b)), nil
}

type encoder struct {
	names    map[*model.ResultTable]string
	datasets map[string]any
}

func (d *Document) tree() (map[string]any, error) {
	e := &encoder{names: map[*model.ResultTable]string{}, datasets: map[string]any{}}
	for _, c := range d.Charts() {
		if _, ok := e.names[c.data]; ok {
			continue
		}
		rows, name, err := datasetRows(c.data)
		if err != nil {
			return nil, err
		}
		e.names[c.data] = name
		e.datasets[name] = rows
	}

	out := e.node(d.root)
	out["$schema"] = SchemaURL
	out["datasets"] = e.datasets
	switch {
	case d.noStroke:
		out["config"] = map[string]any{"view": map[string]any{"stroke": nil}}
	case d.viewStroke != nil:
		out["config"] = map[string]any{"view": map[string]any{"stroke": *d.viewStroke}}
	}
	return out, nil
}

func (e *encoder) node(n Node) map[string]any {
	switch x := n.(type) {
	case *Chart:
		return e.chart(x)
	case *Composition:
		return e.composition(x)
	}
	return map[string]any{}
}

func (e *encoder) chart(c *Chart) map[string]any {
	m := map[string]any{
		"data": map[string]any{"name": e.names[c.data]},
		"mark": string(c.mark),
	}
	if len(c.markProps) > 0 {
		mark := map[string]any{"type": string(c.mark)}
		for k, v := range c.markProps {
			mark[k] = v
		}
		m["mark"] = mark
	}
	if len(c.encoding) > 0 || len(c.tooltip) > 0 {
		enc := make(map[string]any, len(c.encoding)+1)
		for name, ch := range c.encoding {
			enc[string(name)] = channelJSON(ch)
		}
		if len(c.tooltip) > 0 {
			tips := make([]any, len(c.tooltip))
			for i, def := range c.tooltip {
				tips[i] = fieldJSON(def)
			}
			enc["tooltip"] = tips
		}
		m["encoding"] = enc
	}
	if len(c.transforms) > 0 {
		ts := make([]any, len(c.transforms))
		for i, t := range c.transforms {
			ts[i] = transformJSON(t)
		}
		m["transform"] = ts
	}
	if len(c.params) > 0 {
		m["params"] = paramsJSON(c.params)
	}
	if c.width > 0 {
		m["width"] = c.width
	}
	if c.height > 0 {
		m["height"] = c.height
	}
	if t := titleJSON(c.title); t != nil {
		m["title"] = t
	}
	return m
}

func (e *encoder) composition(c *Composition) map[string]any {
	children := make([]any, len(c.children))
	for i, child := range c.children {
		children[i] = e.node(child)
	}
	m := map[string]any{string(c.kind): children}
	if len(c.resolve) > 0 {
		res := map[string]any{}
		for what, channels := range c.resolve {
			inner := map[string]any{}
			for ch, policy := range channels {
				inner[string(ch)] = policy
			}
			res[what] = inner
		}
		m["resolve"] = res
	}
	if len(c.params) > 0 {
		m["params"] = paramsJSON(c.params)
	}
	if t := titleJSON(c.title); t != nil {
		m["title"] = t
	}
	return m
}

func titleJSON(t Title) any {
	switch {
	case t.Text == "":
		return nil
	case t.Align == "":
		return t.Text
	}
	return map[string]any{"text": t.Text, "align": t.Align}
}

func channelJSON(ch Channel) map[string]any {
	switch ch.kind {
	case KindLiteral:
		return map[string]any{"value": ch.value}
	case KindField:
		return fieldJSON(*ch.field)
	case KindCondition:
		then := channelJSON(ch.cond.then)
		for k, v := range predicateJSON(ch.cond.pred) {
			then[k] = v
		}
		out := channelJSON(ch.cond.els)
		out["condition"] = then
		return out
	}
	return map[string]any{}
}

// predicateJSON returns the keys a predicate contributes to a condition.
func predicateJSON(p Predicate) map[string]any {
	switch p.kind {
	case predParam:
		m := map[string]any{"param": p.param}
		if p.empty != nil {
			m["empty"] = *p.empty
		}
		return m
	case predField:
		return map[string]any{"test": map[string]any{"field": p.field, p.op: p.value}}
	case predFieldParam:
		return map[string]any{"test": fieldParamExpr(p.field, p.param)}
	}
	return map[string]any{}
}

func fieldParamExpr(field, param string) string {
	return "datum[" + jsString(field) + "] == " + param
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func fieldJSON(def FieldDef) map[string]any {
	m := map[string]any{"type": string(def.Type)}
	if def.Field != "" {
		m["field"] = def.Field
	}
	if def.Aggregate != "" {
		m["aggregate"] = def.Aggregate
	}
	if def.Bin {
		m["bin"] = true
	}
	if def.Title != "" {
		m["title"] = def.Title
	}
	if def.Format != "" {
		m["format"] = def.Format
	}
	switch def.Stack {
	case "":
	case "none":
		m["stack"] = nil
	default:
		m["stack"] = def.Stack
	}
	if def.Sort != "" {
		m["sort"] = def.Sort
	}
	if a := def.Axis; a != nil {
		if a.None {
			m["axis"] = nil
		} else {
			axis := map[string]any{}
			if a.Title != "" {
				axis["title"] = a.Title
			}
			if a.Format != "" {
				axis["format"] = a.Format
			}
			if a.Domain != nil {
				axis["domain"] = *a.Domain
			}
			if a.TickSize != nil {
				axis["tickSize"] = *a.TickSize
			}
			if a.Angle != nil {
				axis["labelAngle"] = *a.Angle
			}
			m["axis"] = axis
		}
	}
	if s := def.Scale; s != nil {
		scale := map[string]any{}
		if s.Scheme != "" {
			scale["scheme"] = s.Scheme
		}
		if s.DomainParam != "" {
			scale["domain"] = map[string]any{"param": s.DomainParam}
		} else if len(s.Domain) > 0 {
			scale["domain"] = s.Domain
		}
		if s.Zero != nil {
			scale["zero"] = *s.Zero
		}
		m["scale"] = scale
	}
	if l := def.Legend; l != nil {
		if l.None {
			m["legend"] = nil
		} else {
			legend := map[string]any{}
			if l.Title != "" {
				legend["title"] = l.Title
			}
			if l.Orient != "" {
				legend["orient"] = l.Orient
			}
			m["legend"] = legend
		}
	}
	return m
}

func transformJSON(t Transform) map[string]any {
	switch x := t.(type) {
	case Filter:
		if x.Predicate.kind == predFieldParam {
			return map[string]any{"filter": fieldParamExpr(x.Predicate.field, x.Predicate.param)}
		}
		if x.Predicate.kind == predField {
			return map[string]any{"filter": map[string]any{"field": x.Predicate.field, x.Predicate.op: x.Predicate.value}}
		}
		return map[string]any{"filter": predicateJSON(x.Predicate)}
	case Calculate:
		expr := x.Expr
		if x.Param != "" {
			expr = "datum[" + x.Param + "]"
		}
		return map[string]any{"calculate": expr, "as": x.As}
	case Aggregate:
		ops := make([]any, len(x.Ops))
		for i, op := range x.Ops {
			o := map[string]any{"op": op.Op, "as": op.As}
			if op.Field != "" {
				o["field"] = op.Field
			}
			ops[i] = o
		}
		m := map[string]any{"aggregate": ops}
		if len(x.GroupBy) > 0 {
			m["groupby"] = x.GroupBy
		}
		return m
	case Window:
		ops := make([]any, len(x.Ops))
		for i, op := range x.Ops {
			ops[i] = map[string]any{"op": op.Op, "as": op.As}
		}
		m := map[string]any{"window": ops}
		if len(x.GroupBy) > 0 {
			m["groupby"] = x.GroupBy
		}
		if len(x.Sort) > 0 {
			sorts := make([]any, len(x.Sort))
			for i, f := range x.Sort {
				sorts[i] = map[string]any{"field": f}
			}
			m["sort"] = sorts
		}
		return m
	case Regression:
		return map[string]any{"regression": x.Regression, "on": x.On, "method": x.Method}
	}
	return map[string]any{}
}

func paramsJSON(ps []Param) []any {
	out := make([]any, len(ps))
	for i, p := range ps {
		m := map[string]any{"name": p.Name}
		switch p.Kind {
		case IntervalSelection, PointSelection:
			sel := map[string]any{"type": "interval"}
			if p.Kind == PointSelection {
				sel["type"] = "point"
			}
			if len(p.Encodings) > 0 {
				sel["encodings"] = p.Encodings
			}
			if len(p.Fields) > 0 {
				sel["fields"] = p.Fields
			}
			m["select"] = sel
			if p.Legend {
				m["bind"] = "legend"
			}
		case Variable:
			m["value"] = p.Value
			if len(p.Options) > 0 {
				bind := map[string]any{"input": "select", "options": p.Options}
				if p.Label != "" {
					bind["name"] = p.Label
				}
				m["bind"] = bind
			}
		}
		out[i] = m
	}
	return out
}
