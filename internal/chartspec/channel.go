package chartspec

import (
	"github.com/verte-zerg/sparcsviz/internal/model"
)

// ChannelName is a visual property an encoding binds.
type ChannelName string

const (
	X       ChannelName = "x"
	Y       ChannelName = "y"
	X2      ChannelName = "x2"
	Y2      ChannelName = "y2"
	Color   ChannelName = "color"
	Opacity ChannelName = "opacity"
	Size    ChannelName = "size"
	Shape   ChannelName = "shape"
	Text    ChannelName = "text"
)

func (c ChannelName) valid() bool {
	switch c {
	case X, Y, X2, Y2, Color, Opacity, Size, Shape, Text:
		return true
	}
	return false
}

// ChannelKind tags the variant a Channel holds.
type ChannelKind int

const (
	KindLiteral ChannelKind = iota + 1
	KindField
	KindCondition
)

func (k ChannelKind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindField:
		return "field"
	case KindCondition:
		return "condition"
	}
	return "invalid"
}

// Axis options of a positional field channel. None hides the axis.
type Axis struct {
	None     bool
	Title    string
	Format   string
	Domain   *bool
	TickSize *float64
	Angle    *float64
}

// Scale options. DomainParam binds the domain to an interval selection.
type Scale struct {
	Scheme      string
	Domain      []any
	DomainParam string
	Zero        *bool
}

// Legend options. None hides the legend.
type Legend struct {
	None   bool
	Title  string
	Orient string
}

// FieldDef binds a channel to a column. An empty Field is only allowed with
// the count aggregate.
type FieldDef struct {
	Field     string
	Type      model.FieldType
	Aggregate string
	Bin       bool
	Title     string
	Format    string
	Stack     string
	Sort      string
	Axis      *Axis
	Scale     *Scale
	Legend    *Legend
}

// Channel is one of a literal value, a field binding or a conditional whose
// branches are literals or fields.
type Channel struct {
	kind  ChannelKind
	value any
	field *FieldDef
	cond  *condition
}

type condition struct {
	pred Predicate
	then Channel
	els  Channel
}

// Value is a literal channel.
func Value(v any) Channel {
	return Channel{kind: KindLiteral, value: v}
}

// Field is a channel bound to a column.
func Field(def FieldDef) Channel {
	d := def
	return Channel{kind: KindField, field: &d}
}

// F is shorthand for Field(FieldDef{Field: name, Type: t}).
func F(name string, t model.FieldType) Channel {
	return Field(FieldDef{Field: name, Type: t})
}

// Count is the count() aggregate channel.
func Count(title string) Channel {
	return Field(FieldDef{Aggregate: "count", Type: model.Quantitative, Title: title})
}

// If picks then when pred holds for a row and els otherwise.
func If(pred Predicate, then, els Channel) Channel {
	return Channel{kind: KindCondition, cond: &condition{pred: pred, then: then, els: els}}
}

// Kind reports which variant c holds.
func (c Channel) Kind() ChannelKind { return c.kind }

// Literal returns the literal value of a literal channel.
func (c Channel) Literal() (any, bool) {
	if c.kind != KindLiteral {
		return nil, false
	}
	return c.value, true
}

// FieldDef returns a copy of the field binding of a field channel.
func (c Channel) FieldDef() (FieldDef, bool) {
	if c.kind != KindField || c.field == nil {
		return FieldDef{}, false
	}
	return *c.field, true
}

// Condition returns the predicate and branches of a conditional channel.
func (c Channel) Condition() (Predicate, Channel, Channel, bool) {
	if c.kind != KindCondition || c.cond == nil {
		return Predicate{}, Channel{}, Channel{}, false
	}
	return c.cond.pred, c.cond.then, c.cond.els, true
}

type predicateKind int

const (
	predParam predicateKind = iota + 1
	predField
	predFieldParam
)

// Predicate is the test of a conditional channel or a filter transform.
type Predicate struct {
	kind  predicateKind
	param string
	field string
	op    string
	value any
	empty *bool
}

// ParamPredicate holds for rows inside the named selection.
func ParamPredicate(name string) Predicate {
	return Predicate{kind: predParam, param: name}
}

// FieldEquals holds for rows whose field equals v.
func FieldEquals(field string, v any) Predicate {
	return Predicate{kind: predField, field: field, op: "equal", value: v}
}

// FieldLess holds for rows whose field is strictly less than v.
func FieldLess(field string, v any) Predicate {
	return Predicate{kind: predField, field: field, op: "lt", value: v}
}

// FieldEqualsParam holds for rows whose field equals the current value of a
// variable parameter.
func FieldEqualsParam(field, param string) Predicate {
	return Predicate{kind: predFieldParam, field: field, param: param}
}

// WhenEmpty sets whether a selection predicate holds while the selection is
// empty. Selections are inclusive when empty unless set otherwise.
func (p Predicate) WhenEmpty(v bool) Predicate {
	p.empty = &v
	return p
}
