package chartspec

// ParamKind distinguishes gesture selections from bound variables.
type ParamKind int

const (
	IntervalSelection ParamKind = iota + 1
	PointSelection
	Variable
)

func (k ParamKind) selection() bool {
	return k == IntervalSelection || k == PointSelection
}

// Param is a named interactive control. Only its declaration and binding
// are described; its runtime value belongs to the renderer.
type Param struct {
	Name      string
	Kind      ParamKind
	Encodings []ChannelName
	Fields    []string
	// Legend binds a point selection to the color legend.
	Legend bool

	// Value, Options and Label describe a variable bound to a select input.
	Value   any
	Options []any
	Label   string
}

// Interval is a brush selection over the given encodings.
func Interval(name string, encodings ...ChannelName) Param {
	return Param{Name: name, Kind: IntervalSelection, Encodings: encodings}
}

// Point is a point selection projected over fields.
func Point(name string, fields ...string) Param {
	return Param{Name: name, Kind: PointSelection, Fields: fields}
}

// PointOn is a point selection projected over encodings.
func PointOn(name string, encodings ...ChannelName) Param {
	return Param{Name: name, Kind: PointSelection, Encodings: encodings}
}

// BindLegend makes a point selection toggled from the legend.
func (p Param) BindLegend() Param {
	p.Legend = true
	return p
}

// Dropdown is a variable parameter bound to a select input.
func Dropdown(name string, value any, options []any, label string) Param {
	opts := make([]any, len(options))
	copy(opts, options)
	return Param{Name: name, Kind: Variable, Value: value, Options: opts, Label: label}
}
