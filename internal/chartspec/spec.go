// Package chartspec models Vega-Lite chart specifications: unit charts,
// layer and concat compositions, and the document that carries them with
// their datasets. A Document validates itself and serializes to canonical
// JSON.
package chartspec

import (
	"github.com/verte-zerg/sparcsviz/internal/model"
)

// Mark is the geometric primitive a chart draws.
type Mark string

const (
	MarkBar    Mark = "bar"
	MarkLine   Mark = "line"
	MarkArea   Mark = "area"
	MarkPoint  Mark = "point"
	MarkCircle Mark = "circle"
	MarkRect   Mark = "rect"
	MarkText   Mark = "text"
)

func (m Mark) valid() bool {
	switch m {
	case MarkBar, MarkLine, MarkArea, MarkPoint, MarkCircle, MarkRect, MarkText:
		return true
	}
	return false
}

// Title of a chart or composition.
type Title struct {
	Text  string
	Align string
}

// Node is a Chart or a Composition.
type Node interface {
	isNode()
}

// Chart is a unit specification over one ResultTable.
type Chart struct {
	data       *model.ResultTable
	mark       Mark
	markProps  map[string]any
	encoding   map[ChannelName]Channel
	tooltip    []FieldDef
	transforms []Transform
	params     []Param
	width      int
	height     int
	title      Title
}

// NewChart starts a unit chart drawing mark over data.
func NewChart(data *model.ResultTable, mark Mark) *Chart {
	return &Chart{data: data, mark: mark, encoding: map[ChannelName]Channel{}}
}

func (*Chart) isNode() {}

// Copy returns an independent copy so a base chart can be specialized more
// than once.
func (c *Chart) Copy() *Chart {
	out := *c
	out.markProps = make(map[string]any, len(c.markProps))
	for k, v := range c.markProps {
		out.markProps[k] = v
	}
	out.encoding = make(map[ChannelName]Channel, len(c.encoding))
	for k, v := range c.encoding {
		out.encoding[k] = v
	}
	out.tooltip = append([]FieldDef(nil), c.tooltip...)
	out.transforms = append([]Transform(nil), c.transforms...)
	out.params = append([]Param(nil), c.params...)
	return &out
}

// Mark changes the mark, keeping everything else.
func (c *Chart) Mark(m Mark) *Chart {
	c.mark = m
	return c
}

// MarkProp sets a mark property such as align or color.
func (c *Chart) MarkProp(key string, value any) *Chart {
	if c.markProps == nil {
		c.markProps = map[string]any{}
	}
	c.markProps[key] = value
	return c
}

// Encode binds a channel.
func (c *Chart) Encode(name ChannelName, ch Channel) *Chart {
	c.encoding[name] = ch
	return c
}

// Tooltip sets the tooltip fields.
func (c *Chart) Tooltip(defs ...FieldDef) *Chart {
	c.tooltip = append([]FieldDef(nil), defs...)
	return c
}

// Transform appends transforms.
func (c *Chart) Transform(ts ...Transform) *Chart {
	c.transforms = append(c.transforms, ts...)
	return c
}

// AddParam declares params on the chart.
func (c *Chart) AddParam(ps ...Param) *Chart {
	c.params = append(c.params, ps...)
	return c
}

// Size sets width and height; zero leaves the renderer default.
func (c *Chart) Size(width, height int) *Chart {
	c.width, c.height = width, height
	return c
}

// Titled sets the chart title.
func (c *Chart) Titled(t Title) *Chart {
	c.title = t
	return c
}

// Data returns the chart's table.
func (c *Chart) Data() *model.ResultTable { return c.data }

// MarkType returns the mark.
func (c *Chart) MarkType() Mark { return c.mark }

// Channel returns the channel bound to name.
func (c *Chart) Channel(name ChannelName) (Channel, bool) {
	ch, ok := c.encoding[name]
	return ch, ok
}

// Transforms returns a copy of the transform list.
func (c *Chart) Transforms() []Transform {
	return append([]Transform(nil), c.transforms...)
}

// Params returns a copy of the declared params.
func (c *Chart) Params() []Param {
	return append([]Param(nil), c.params...)
}

// CompositionKind is how children are combined.
type CompositionKind string

const (
	Layered CompositionKind = "layer"
	HConcat CompositionKind = "hconcat"
	VConcat CompositionKind = "vconcat"
)

// Resolution policies.
const (
	Shared      = "shared"
	Independent = "independent"
)

// Composition combines child nodes.
type Composition struct {
	kind     CompositionKind
	children []Node
	resolve  map[string]map[ChannelName]string
	params   []Param
	title    Title
}

func (*Composition) isNode() {}

func compose(kind CompositionKind, children []Node) *Composition {
	return &Composition{kind: kind, children: append([]Node(nil), children...)}
}

// Layer draws children over each other on shared axes.
func Layer(children ...Node) *Composition { return compose(Layered, children) }

// HConcatOf places children side by side.
func HConcatOf(children ...Node) *Composition { return compose(HConcat, children) }

// VConcatOf stacks children vertically.
func VConcatOf(children ...Node) *Composition { return compose(VConcat, children) }

// ResolveLegend sets the legend resolution of a channel.
func (c *Composition) ResolveLegend(ch ChannelName, policy string) *Composition {
	return c.setResolve("legend", ch, policy)
}

// ResolveScale sets the scale resolution of a channel.
func (c *Composition) ResolveScale(ch ChannelName, policy string) *Composition {
	return c.setResolve("scale", ch, policy)
}

func (c *Composition) setResolve(what string, ch ChannelName, policy string) *Composition {
	if c.resolve == nil {
		c.resolve = map[string]map[ChannelName]string{}
	}
	if c.resolve[what] == nil {
		c.resolve[what] = map[ChannelName]string{}
	}
	c.resolve[what][ch] = policy
	return c
}

// AddParam declares params on the composition.
func (c *Composition) AddParam(ps ...Param) *Composition {
	c.params = append(c.params, ps...)
	return c
}

// Titled sets the composition title.
func (c *Composition) Titled(t Title) *Composition {
	c.title = t
	return c
}

// Kind returns the composition kind.
func (c *Composition) Kind() CompositionKind { return c.kind }

// Children returns a copy of the child list.
func (c *Composition) Children() []Node {
	return append([]Node(nil), c.children...)
}

// Document is a root node plus document-wide configuration.
type Document struct {
	root       Node
	viewStroke *string
	noStroke   bool
}

// NewDocument wraps a root node.
func NewDocument(root Node) *Document {
	return &Document{root: root}
}

// Root returns the root node.
func (d *Document) Root() Node { return d.root }

// ViewStroke sets the stroke around each view; "" removes it.
func (d *Document) ViewStroke(color string) *Document {
	if color == "" {
		d.noStroke = true
		d.viewStroke = nil
		return d
	}
	d.noStroke = false
	d.viewStroke = &color
	return d
}

// Charts returns every unit chart in the tree, depth first.
func (d *Document) Charts() []*Chart {
	var out []*Chart
	walk(d.root, func(n Node) {
		if c, ok := n.(*Chart); ok {
			out = append(out, c)
		}
	})
	return out
}

func walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	if c, ok := n.(*Composition); ok {
		for _, child := range c.children {
			walk(child, fn)
		}
	}
}
