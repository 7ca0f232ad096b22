package chartspec

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

// fieldSet maps the columns visible at a point of a chart's transform
// pipeline to their types.
type fieldSet map[string]model.FieldType

func (fs fieldSet) with(name string, t model.FieldType) fieldSet {
	out := make(fieldSet, len(fs)+1)
	for k, v := range fs {
		out[k] = v
	}
	out[name] = t
	return out
}

var datumRef = regexp.MustCompile(`datum(?:\.([A-Za-z_$][A-Za-z0-9_$]*)|\[\s*"([^"]*)"\s*\]|\[\s*'([^']*)'\s*\])`)

// exprRefs returns the fields an expression reads through datum, in order
// of first use.
func exprRefs(expr string) []string {
	var refs []string
	seen := map[string]bool{}
	for _, m := range datumRef.FindAllStringSubmatch(expr, -1) {
		name := m[1] + m[2] + m[3]
		if !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	}
	return refs
}

type validator struct {
	params   map[string]Param
	problems []string
}

func (v *validator) addf(path, format string, args ...any) {
	v.problems = append(v.problems, path+": "+fmt.Sprintf(format, args...))
}

// Validate checks the whole tree. Every field reference must resolve
// against the chart's table or an earlier transform, channel types must fit
// the column types, marks must have the channels they need, and every
// referenced param must be declared exactly once somewhere in the tree.
// All problems are reported in one VALIDATION_FAILED error.
func (d *Document) Validate() error {
	if d == nil || d.root == nil {
		return apperrors.New(apperrors.CodeValidationFailed, "document has no root")
	}
	v := &validator{params: map[string]Param{}}
	v.collectParams(d.root, "spec")
	v.node(d.root, "spec")
	if len(v.problems) == 0 {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeValidationFailed,
		strings.Join(v.problems, "; "),
		map[string]string{"problems": strconv.Itoa(len(v.problems))})
}

func childPath(path string, kind CompositionKind, i int) string {
	return fmt.Sprintf("%s.%s[%d]", path, kind, i)
}

func (v *validator) collectParams(n Node, path string) {
	var declared []Param
	switch x := n.(type) {
	case *Chart:
		declared = x.params
	case *Composition:
		declared = x.params
		for _, p := range x.params {
			if p.Kind.selection() {
				v.addf(path, "selection %q must be declared on a unit chart", p.Name)
			}
		}
		for i, child := range x.children {
			v.collectParams(child, childPath(path, x.kind, i))
		}
	}
	for _, p := range declared {
		v.declare(p, path)
	}
}

func (v *validator) declare(p Param, path string) {
	if p.Name == "" {
		v.addf(path, "param without a name")
		return
	}
	if _, dup := v.params[p.Name]; dup {
		v.addf(path, "param %q declared more than once", p.Name)
		return
	}
	v.params[p.Name] = p
	switch p.Kind {
	case IntervalSelection:
		if len(p.Encodings) == 0 {
			v.addf(path, "interval selection %q has no encodings", p.Name)
		}
	case PointSelection:
		if p.Legend && len(p.Fields) != 1 {
			v.addf(path, "legend-bound selection %q needs exactly one field", p.Name)
		}
	case Variable:
		if len(p.Options) > 0 && !containsValue(p.Options, p.Value) {
			v.addf(path, "param %q value %v is not one of its options", p.Name, p.Value)
		}
	default:
		v.addf(path, "param %q has no kind", p.Name)
	}
}

func containsValue(options []any, value any) bool {
	for _, o := range options {
		if model.EqualValues(o, value) {
			return true
		}
	}
	return false
}

func (v *validator) node(n Node, path string) {
	switch x := n.(type) {
	case *Chart:
		v.chart(x, path)
	case *Composition:
		v.composition(x, path)
	default:
		v.addf(path, "unknown node %T", n)
	}
}

func (v *validator) composition(c *Composition, path string) {
	if len(c.children) == 0 {
		v.addf(path, "%s has no children", c.kind)
	}
	switch c.kind {
	case Layered, HConcat, VConcat:
	default:
		v.addf(path, "unknown composition %q", c.kind)
	}
	for what, channels := range c.resolve {
		if what != "legend" && what != "scale" && what != "axis" {
			v.addf(path, "unknown resolution %q", what)
		}
		for ch, policy := range channels {
			if !ch.valid() {
				v.addf(path, "resolve %s: unknown channel %q", what, ch)
			}
			if policy != Shared && policy != Independent {
				v.addf(path, "resolve %s.%s: unknown policy %q", what, ch, policy)
			}
		}
	}
	for i, child := range c.children {
		cp := childPath(path, c.kind, i)
		if c.kind == Layered {
			if comp, ok := child.(*Composition); ok && comp.kind != Layered {
				v.addf(cp, "a layer can only hold charts or layers, got %s", comp.kind)
			}
		}
		v.node(child, cp)
	}
}

func (v *validator) chart(c *Chart, path string) {
	if c.data == nil {
		v.addf(path, "chart has no data")
		return
	}
	if !c.mark.valid() {
		v.addf(path, "unknown mark %q", c.mark)
	}

	fs := fieldSet{}
	for _, col := range c.data.Columns() {
		fs[col.Name] = col.Type
	}
	for i, t := range c.transforms {
		fs = v.transform(t, fs, fmt.Sprintf("%s.transform[%d]", path, i))
	}

	names := make([]string, 0, len(c.encoding))
	for name := range c.encoding {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		ch := ChannelName(name)
		p := path + ".encoding." + name
		if !ch.valid() {
			v.addf(p, "unknown channel")
			continue
		}
		v.channel(c.encoding[ch], fs, p, true)
	}
	for i, def := range c.tooltip {
		v.fieldDef(def, fs, fmt.Sprintf("%s.encoding.tooltip[%d]", path, i))
	}

	for _, p := range c.params {
		pp := path + ".params." + p.Name
		for _, f := range p.Fields {
			if _, ok := fs[f]; !ok {
				v.addf(pp, "selection field %q not found", f)
			}
		}
		for _, enc := range p.Encodings {
			if _, ok := c.encoding[enc]; !ok {
				v.addf(pp, "selection encoding %q is not encoded", enc)
			}
		}
		if p.Legend && !c.hasLegendFor(p.Fields) {
			v.addf(pp, "no legend channel encodes %q", p.Fields)
		}
	}

	v.markRules(c, path)
}

// hasLegendFor reports whether a legend-producing channel is bound to the
// single field of a legend selection.
func (c *Chart) hasLegendFor(fields []string) bool {
	if len(fields) != 1 {
		return false
	}
	for _, name := range []ChannelName{Color, Shape, Size, Opacity} {
		ch, ok := c.encoding[name]
		if !ok {
			continue
		}
		if def, ok := ch.FieldDef(); ok && def.Field == fields[0] {
			return true
		}
	}
	return false
}

func (v *validator) markRules(c *Chart, path string) {
	_, hasX := c.encoding[X]
	_, hasY := c.encoding[Y]
	if _, ok := c.encoding[Text]; ok && c.mark != MarkText {
		v.addf(path, "text channel needs a text mark, got %s", c.mark)
	}
	switch c.mark {
	case MarkArea, MarkLine:
		if !hasX || !hasY {
			v.addf(path, "%s mark needs both x and y", c.mark)
		}
	case MarkBar, MarkRect:
		if !hasX && !hasY {
			v.addf(path, "%s mark needs x or y", c.mark)
		}
	}
}

func (v *validator) channel(ch Channel, fs fieldSet, path string, top bool) {
	switch ch.kind {
	case KindLiteral:
	case KindField:
		v.fieldDef(*ch.field, fs, path)
	case KindCondition:
		if !top {
			v.addf(path, "conditions cannot nest")
			return
		}
		v.predicate(ch.cond.pred, fs, path+".condition")
		v.channel(ch.cond.then, fs, path+".condition", false)
		v.channel(ch.cond.els, fs, path, false)
	default:
		v.addf(path, "empty channel")
	}
}

var aggregateOps = map[string]bool{
	"count": true, "distinct": true, "sum": true, "mean": true, "average": true,
	"median": true, "min": true, "max": true, "stdev": true, "variance": true,
}

func (v *validator) fieldDef(def FieldDef, fs fieldSet, path string) {
	if !def.Type.Valid() {
		v.addf(path, "invalid type %q", def.Type)
		return
	}
	if def.Aggregate != "" {
		if !aggregateOps[def.Aggregate] {
			v.addf(path, "unknown aggregate %q", def.Aggregate)
		}
		if def.Type != model.Quantitative {
			v.addf(path, "aggregated channel must be quantitative, got %s", def.Type)
		}
	}
	if def.Scale != nil && def.Scale.DomainParam != "" {
		p, ok := v.params[def.Scale.DomainParam]
		switch {
		case !ok:
			v.addf(path, "scale domain param %q is not declared", def.Scale.DomainParam)
		case p.Kind != IntervalSelection:
			v.addf(path, "scale domain param %q is not an interval selection", def.Scale.DomainParam)
		}
	}
	switch def.Stack {
	case "", "zero", "center", "normalize", "none":
	default:
		v.addf(path, "unknown stack %q", def.Stack)
	}

	if def.Field == "" {
		if def.Aggregate != "count" {
			v.addf(path, "channel has no field")
		}
		return
	}
	colType, ok := fs[def.Field]
	if !ok {
		v.addf(path, "field %q not found", def.Field)
		return
	}
	if !compatible(colType, def.Type) {
		v.addf(path, "field %q is %s, cannot encode as %s", def.Field, colType, def.Type)
	}
	if def.Aggregate != "" && def.Aggregate != "count" && def.Aggregate != "distinct" && colType != model.Quantitative {
		v.addf(path, "cannot %s non-quantitative field %q", def.Aggregate, def.Field)
	}
	if def.Bin && colType != model.Quantitative {
		v.addf(path, "cannot bin non-quantitative field %q", def.Field)
	}
}

// compatible reports whether a column of type col can be encoded as enc.
func compatible(col, enc model.FieldType) bool {
	if col == enc {
		return true
	}
	switch col {
	case model.Quantitative, model.Temporal, model.Nominal:
		return enc == model.Ordinal
	case model.Ordinal:
		return enc == model.Nominal
	}
	return false
}

func (v *validator) predicate(p Predicate, fs fieldSet, path string) {
	switch p.kind {
	case predParam:
		if _, ok := v.params[p.param]; !ok {
			v.addf(path, "param %q is not declared", p.param)
		}
	case predField:
		if _, ok := fs[p.field]; !ok {
			v.addf(path, "field %q not found", p.field)
		}
		switch p.op {
		case "equal", "lt", "lte", "gt", "gte":
		default:
			v.addf(path, "unknown field predicate %q", p.op)
		}
	case predFieldParam:
		if _, ok := fs[p.field]; !ok {
			v.addf(path, "field %q not found", p.field)
		}
		param, ok := v.params[p.param]
		switch {
		case !ok:
			v.addf(path, "param %q is not declared", p.param)
		case param.Kind != Variable:
			v.addf(path, "param %q is not a variable", p.param)
		}
	default:
		v.addf(path, "empty predicate")
	}
}

func (v *validator) transform(t Transform, fs fieldSet, path string) fieldSet {
	switch x := t.(type) {
	case Filter:
		v.predicate(x.Predicate, fs, path+".filter")
		return fs
	case Calculate:
		return v.calculate(x, fs, path)
	case Aggregate:
		return v.aggregate(x, fs, path)
	case Window:
		out := fs
		for _, f := range append(append([]string(nil), x.GroupBy...), x.Sort...) {
			if _, ok := fs[f]; !ok {
				v.addf(path, "window field %q not found", f)
			}
		}
		if len(x.Ops) == 0 {
			v.addf(path, "window has no operations")
		}
		for _, op := range x.Ops {
			switch op.Op {
			case "row_number", "rank", "dense_rank", "count":
			default:
				v.addf(path, "unknown window op %q", op.Op)
			}
			if op.As == "" {
				v.addf(path, "window op %s has no output name", op.Op)
				continue
			}
			out = out.with(op.As, model.Quantitative)
		}
		return out
	case Regression:
		for _, f := range []string{x.On, x.Regression} {
			t, ok := fs[f]
			switch {
			case !ok:
				v.addf(path, "regression field %q not found", f)
			case t != model.Quantitative:
				v.addf(path, "regression field %q is %s, not quantitative", f, t)
			}
		}
		switch x.Method {
		case "linear", "log", "exp", "pow", "quad", "poly":
		default:
			v.addf(path, "unknown regression method %q", x.Method)
		}
		return fieldSet{x.On: model.Quantitative, x.Regression: model.Quantitative}
	case nil:
		v.addf(path, "nil transform")
		return fs
	default:
		v.addf(path, "unknown transform %T", t)
		return fs
	}
}

func (v *validator) calculate(c Calculate, fs fieldSet, path string) fieldSet {
	if c.As == "" {
		v.addf(path, "calculate has no output name")
		return fs
	}
	if !c.Type.Valid() {
		v.addf(path, "calculate %s has invalid type %q", c.As, c.Type)
	}
	switch {
	case c.Param != "" && c.Expr != "":
		v.addf(path, "calculate %s sets both param and expression", c.As)
	case c.Param != "":
		p, ok := v.params[c.Param]
		switch {
		case !ok:
			v.addf(path, "param %q is not declared", c.Param)
		case p.Kind != Variable:
			v.addf(path, "param %q is not a variable", c.Param)
		default:
			// Every column the parameter can select must be aliasable.
			for _, opt := range p.Options {
				name, _ := opt.(string)
				t, ok := fs[name]
				switch {
				case !ok:
					v.addf(path, "param %q option %v is not a field", c.Param, opt)
				case !compatible(t, c.Type):
					v.addf(path, "param %q option %q is %s, cannot alias as %s", c.Param, name, t, c.Type)
				}
			}
		}
	case c.Expr != "":
		for _, ref := range exprRefs(c.Expr) {
			if _, ok := fs[ref]; !ok {
				v.addf(path, "calculate %s: field %q not found", c.As, ref)
			}
		}
	default:
		v.addf(path, "calculate %s has no expression", c.As)
	}
	return fs.with(c.As, c.Type)
}

func (v *validator) aggregate(a Aggregate, fs fieldSet, path string) fieldSet {
	out := fieldSet{}
	for _, g := range a.GroupBy {
		t, ok := fs[g]
		if !ok {
			v.addf(path, "groupby field %q not found", g)
			continue
		}
		out[g] = t
	}
	if len(a.Ops) == 0 {
		v.addf(path, "aggregate has no operations")
	}
	for _, op := range a.Ops {
		if !aggregateOps[op.Op] {
			v.addf(path, "unknown aggregate %q", op.Op)
		}
		if op.As == "" {
			v.addf(path, "aggregate %s has no output name", op.Op)
			continue
		}
		if op.Field == "" {
			if op.Op != "count" {
				v.addf(path, "aggregate %s has no field", op.Op)
			}
		} else if t, ok := fs[op.Field]; !ok {
			v.addf(path, "aggregate field %q not found", op.Field)
		} else if op.Op != "count" && op.Op != "distinct" && t != model.Quantitative {
			v.addf(path, "cannot %s non-quantitative field %q", op.Op, op.Field)
		}
		out[op.As] = model.Quantitative
	}
	return out
}
