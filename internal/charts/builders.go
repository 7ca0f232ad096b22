package charts

import (
	"math"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	"github.com/verte-zerg/sparcsviz/internal/chartspec"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

const (
	highlightColor = "orange"
	baseColor      = "steelblue"
	mutedColor     = "lightgray"

	countFormat = ",.0f"
	stayFormat  = ".2f"
)

// Param names shared by builders and their documents.
const (
	ParamHighlight = "highlight"
	ParamInsurance = "insurance"
	ParamMeasure   = "measure"
	ParamLimit     = "limit"

	selectLegend = "legend_insurance"
	selectBrush  = "brush"
	selectAge    = "age_point"
)

func ptr[T any](v T) *T { return &v }

// thousands renders a count with grouping separators.
func thousands(v any) string {
	f, _ := model.ToFloat(v)
	return message.NewPrinter(language.English).Sprintf("%d", int64(math.Round(f)))
}

var (
	yearOrdinal = chartspec.FieldDef{Field: aggregate.ColYear, Type: model.Ordinal, Title: "Year"}
	yearAxis    = chartspec.FieldDef{
		Field: aggregate.ColYear, Type: model.Quantitative, Title: "Year",
		Axis:  &chartspec.Axis{Format: "d"},
		Scale: &chartspec.Scale{Zero: ptr(false)},
	}
	dischargesDef = chartspec.FieldDef{Field: aggregate.ColDischarges, Type: model.Quantitative, Title: "Discharges", Format: countFormat}
	insuranceDef  = chartspec.FieldDef{Field: aggregate.ColInsurance, Type: model.Nominal, Title: "Insurance type"}
	ageDef        = chartspec.FieldDef{Field: aggregate.ColAgeGroup, Type: model.Ordinal, Title: "Age group"}
	stayDef       = chartspec.FieldDef{Field: aggregate.ColAvgStay, Type: model.Quantitative, Title: "Average stay (days)", Format: stayFormat}
)

// HighlightBar draws discharges per year with the highlight year in a
// different color. The highlight defaults to the latest year.
func HighlightBar(tbl *model.ResultTable, p Params) (*chartspec.Document, error) {
	if err := require(tbl, aggregate.ColYear, aggregate.ColDischarges); err != nil {
		return nil, err
	}
	years := tbl.Distinct(aggregate.ColYear)
	if len(years) == 0 {
		return nil, buildError("table has no years", map[string]string{"table": tbl.Name()})
	}
	if p[ParamHighlight] == "" {
		p = withDefault(p, ParamHighlight, displayValue(years[len(years)-1]))
	}
	highlight, err := p.choose(ParamHighlight, years)
	if err != nil {
		return nil, err
	}
	var total any
	for i := 0; i < tbl.Len(); i++ {
		if model.EqualValues(tbl.Value(i, aggregate.ColYear), highlight) {
			total = tbl.Value(i, aggregate.ColDischarges)
		}
	}

	chart := chartspec.NewChart(tbl, chartspec.MarkBar).
		Encode(chartspec.X, chartspec.Field(withAxis(yearOrdinal, &chartspec.Axis{Angle: ptr(0.0)}))).
		Encode(chartspec.Y, chartspec.Field(withAxis(dischargesDef, &chartspec.Axis{Format: countFormat}))).
		Encode(chartspec.Color, chartspec.If(
			chartspec.FieldEquals(aggregate.ColYear, highlight),
			chartspec.Value(highlightColor),
			chartspec.Value(baseColor),
		)).
		Tooltip(yearOrdinal, dischargesDef).
		Size(600, 300).
		Titled(chartspec.Title{Text: "Discharges per year, " + displayValue(highlight) + ": " + thousands(total)})
	return chartspec.NewDocument(chart), nil
}

// BarTrendline layers a linear regression line over the yearly bars. Both
// layers read the same table.
func BarTrendline(tbl *model.ResultTable, _ Params) (*chartspec.Document, error) {
	if err := require(tbl, aggregate.ColYear, aggregate.ColDischarges); err != nil {
		return nil, err
	}
	bars := chartspec.NewChart(tbl, chartspec.MarkBar).
		Encode(chartspec.X, chartspec.Field(yearAxis)).
		Encode(chartspec.Y, chartspec.Field(dischargesDef)).
		Tooltip(yearOrdinal, dischargesDef)
	trend := chartspec.NewChart(tbl, chartspec.MarkLine).
		MarkProp("color", "firebrick").
		Transform(chartspec.LinearFit(aggregate.ColYear, aggregate.ColDischarges)).
		Encode(chartspec.X, chartspec.Field(yearAxis)).
		Encode(chartspec.Y, chartspec.Field(dischargesDef))
	root := chartspec.Layer(bars, trend).
		Titled(chartspec.Title{Text: "Discharges per year with linear trend"})
	return chartspec.NewDocument(root), nil
}

// StackedBarLegend stacks yearly discharges by insurance type. Clicking a
// legend entry fades the other types.
func StackedBarLegend(tbl *model.ResultTable, _ Params) (*chartspec.Document, error) {
	x := chartspec.Field(yearOrdinal)
	return stackedLegend(tbl, chartspec.MarkBar, x, "zero", nil)
}

// StackedAreaLegend is StackedBarLegend drawn as a centered streamgraph.
func StackedAreaLegend(tbl *model.ResultTable, _ Params) (*chartspec.Document, error) {
	x := chartspec.Field(withAxis(yearAxis, &chartspec.Axis{Format: "d", Domain: ptr(false), TickSize: ptr(0.0)}))
	return stackedLegend(tbl, chartspec.MarkArea, x, "center", &chartspec.Axis{None: true})
}

func stackedLegend(tbl *model.ResultTable, mark chartspec.Mark, x chartspec.Channel, stack string, yAxis *chartspec.Axis) (*chartspec.Document, error) {
	if err := require(tbl, aggregate.ColYear, aggregate.ColInsurance, aggregate.ColDischarges); err != nil {
		return nil, err
	}
	y := chartspec.FieldDef{
		Field: aggregate.ColDischarges, Type: model.Quantitative, Aggregate: "sum",
		Title: "Discharges", Stack: stack, Axis: yAxis,
	}
	color := insuranceDef
	color.Scale = &chartspec.Scale{Scheme: "category20b"}

	chart := chartspec.NewChart(tbl, mark).
		Encode(chartspec.X, x).
		Encode(chartspec.Y, chartspec.Field(y)).
		Encode(chartspec.Color, chartspec.Field(color)).
		Encode(chartspec.Opacity, chartspec.If(
			chartspec.ParamPredicate(selectLegend),
			chartspec.Value(1),
			chartspec.Value(0.2),
		)).
		Tooltip(yearOrdinal, insuranceDef, dischargesDef).
		AddParam(chartspec.Point(selectLegend, aggregate.ColInsurance).BindLegend()).
		Size(600, 300).
		Titled(chartspec.Title{Text: "Discharges by insurance type"})
	return chartspec.NewDocument(chart), nil
}

// BrushTable links a brushable scatter to text tables listing the brushed
// rows, capped at limit-1 rows.
func BrushTable(tbl *model.ResultTable, p Params) (*chartspec.Document, error) {
	if err := require(tbl, aggregate.ColYear, aggregate.ColInsurance, aggregate.ColDischarges); err != nil {
		return nil, err
	}
	limit, err := p.intParam(ParamLimit, 15, 2, 200)
	if err != nil {
		return nil, err
	}

	points := chartspec.NewChart(tbl, chartspec.MarkPoint).
		Encode(chartspec.X, chartspec.Field(yearAxis)).
		Encode(chartspec.Y, chartspec.Field(dischargesDef)).
		Encode(chartspec.Color, chartspec.If(
			chartspec.ParamPredicate(selectBrush),
			chartspec.Field(insuranceDef),
			chartspec.Value("grey"),
		)).
		AddParam(chartspec.Interval(selectBrush, chartspec.X, chartspec.Y)).
		Size(400, 300)

	ranked := chartspec.NewChart(tbl, chartspec.MarkText).
		MarkProp("align", "right").
		Encode(chartspec.Y, chartspec.Field(chartspec.FieldDef{
			Field: "row_number", Type: model.Ordinal, Axis: &chartspec.Axis{None: true},
		})).
		Transform(
			chartspec.FilterBy(chartspec.ParamPredicate(selectBrush)),
			chartspec.RowNumber("row_number"),
			chartspec.FilterBy(chartspec.FieldLess("row_number", limit)),
		)
	column := func(def chartspec.FieldDef, title string) *chartspec.Chart {
		return ranked.Copy().
			Encode(chartspec.Text, chartspec.Field(def)).
			Titled(chartspec.Title{Text: title, Align: "right"})
	}
	tables := chartspec.HConcatOf(
		column(yearOrdinal, "Year"),
		column(insuranceDef, "Insurance"),
		column(dischargesDef, "Discharges"),
	)

	root := chartspec.HConcatOf(points, tables).ResolveLegend(chartspec.Color, chartspec.Independent)
	return chartspec.NewDocument(root).ViewStroke(""), nil
}

// DropdownInsurance shows stay length by age group. A dropdown over the
// table's insurance types highlights the scatter and filters the bars.
func DropdownInsurance(tbl *model.ResultTable, p Params) (*chartspec.Document, error) {
	if err := require(tbl, aggregate.ColAgeGroup, aggregate.ColInsurance, aggregate.ColAvgStay); err != nil {
		return nil, err
	}
	options := tbl.Distinct(aggregate.ColInsurance)
	value, err := p.choose(ParamInsurance, options)
	if err != nil {
		return nil, err
	}
	selected := chartspec.FieldEqualsParam(aggregate.ColInsurance, ParamInsurance)

	scatter := chartspec.NewChart(tbl, chartspec.MarkPoint).
		MarkProp("filled", true).
		Encode(chartspec.X, chartspec.Field(ageDef)).
		Encode(chartspec.Y, chartspec.Field(stayDef)).
		Encode(chartspec.Color, chartspec.If(selected, chartspec.Field(insuranceDef), chartspec.Value(mutedColor))).
		Tooltip(ageDef, insuranceDef, stayDef).
		Size(350, 300).
		Titled(chartspec.Title{Text: "All insurance types"})
	bars := chartspec.NewChart(tbl, chartspec.MarkBar).
		Transform(chartspec.FilterBy(selected)).
		Encode(chartspec.X, chartspec.Field(ageDef)).
		Encode(chartspec.Y, chartspec.Field(stayDef)).
		Encode(chartspec.Color, chartspec.Value(baseColor)).
		Tooltip(ageDef, stayDef).
		Size(350, 300).
		Titled(chartspec.Title{Text: "Selected insurance type"})

	root := chartspec.HConcatOf(scatter, bars).
		AddParam(chartspec.Dropdown(ParamInsurance, value, options, "Insurance type ")).
		Titled(chartspec.Title{Text: "Average length of stay by age group"})
	return chartspec.NewDocument(root), nil
}

// DropdownMeasure lets a dropdown pick which measure column is charted.
// The pick is aliased to "value" so one encoding serves every measure.
func DropdownMeasure(tbl *model.ResultTable, p Params) (*chartspec.Document, error) {
	if err := require(tbl, aggregate.ColAgeGroup, aggregate.ColInsurance); err != nil {
		return nil, err
	}
	var measures []any
	for _, col := range tbl.Columns() {
		if col.Type == model.Quantitative {
			measures = append(measures, col.Name)
		}
	}
	sort.Slice(measures, func(i, j int) bool { return measures[i].(string) < measures[j].(string) })
	value, err := p.choose(ParamMeasure, measures)
	if err != nil {
		return nil, err
	}
	alias := chartspec.AliasParam("value", ParamMeasure, model.Quantitative)

	bars := chartspec.NewChart(tbl, chartspec.MarkBar).
		Transform(alias, chartspec.Mean("value", "mean_value", aggregate.ColAgeGroup)).
		Encode(chartspec.X, chartspec.Field(ageDef)).
		Encode(chartspec.Y, chartspec.Field(chartspec.FieldDef{
			Field: "mean_value", Type: model.Quantitative, Title: "Mean across insurance types", Format: stayFormat,
		})).
		Size(350, 300)
	scatter := chartspec.NewChart(tbl, chartspec.MarkPoint).
		Transform(alias).
		Encode(chartspec.X, chartspec.Field(ageDef)).
		Encode(chartspec.Y, chartspec.Field(chartspec.FieldDef{Field: "value", Type: model.Quantitative, Title: "Selected measure"})).
		Encode(chartspec.Color, chartspec.Field(insuranceDef)).
		Tooltip(ageDef, insuranceDef, chartspec.FieldDef{Field: "value", Type: model.Quantitative, Title: "Value", Format: stayFormat}).
		Size(350, 300)

	root := chartspec.HConcatOf(bars, scatter).
		AddParam(chartspec.Dropdown(ParamMeasure, value, measures, "Measure ")).
		Titled(chartspec.Title{Text: "Utilization by age group"})
	return chartspec.NewDocument(root), nil
}

// Dashboard combines a yearly trend, stay by age group and a gender split,
// all filtered by one shared insurance dropdown. The dropdown lists every
// insurance type found in any of the three tables.
func Dashboard(byYear, stay, gender *model.ResultTable, p Params) (*chartspec.Document, error) {
	if err := require(byYear, aggregate.ColYear, aggregate.ColInsurance, aggregate.ColDischarges); err != nil {
		return nil, err
	}
	if err := require(stay, aggregate.ColAgeGroup, aggregate.ColInsurance, aggregate.ColAvgStay); err != nil {
		return nil, err
	}
	if err := require(gender, aggregate.ColGender, aggregate.ColInsurance, aggregate.ColDischarges); err != nil {
		return nil, err
	}
	options := distinctUnion(aggregate.ColInsurance, byYear, stay, gender)
	value, err := p.choose(ParamInsurance, options)
	if err != nil {
		return nil, err
	}
	filter := chartspec.FilterBy(chartspec.FieldEqualsParam(aggregate.ColInsurance, ParamInsurance))

	trend := chartspec.NewChart(byYear, chartspec.MarkLine).
		MarkProp("point", true).
		Transform(filter).
		Encode(chartspec.X, chartspec.Field(yearAxis)).
		Encode(chartspec.Y, chartspec.Field(dischargesDef)).
		Tooltip(yearOrdinal, dischargesDef).
		Size(720, 200).
		Titled(chartspec.Title{Text: "Discharges per year"})
	stayBars := chartspec.NewChart(stay, chartspec.MarkBar).
		Transform(filter).
		Encode(chartspec.X, chartspec.Field(ageDef)).
		Encode(chartspec.Y, chartspec.Field(stayDef)).
		Tooltip(ageDef, stayDef).
		Size(340, 220).
		Titled(chartspec.Title{Text: "Average stay by age group"})
	genderDef := chartspec.FieldDef{Field: aggregate.ColGender, Type: model.Nominal, Title: "Gender"}
	genderBars := chartspec.NewChart(gender, chartspec.MarkBar).
		Transform(filter).
		Encode(chartspec.X, chartspec.Field(genderDef)).
		Encode(chartspec.Y, chartspec.Field(dischargesDef)).
		Encode(chartspec.Color, chartspec.Field(genderDef)).
		Tooltip(genderDef, dischargesDef).
		Size(340, 220).
		Titled(chartspec.Title{Text: "Discharges by gender"})

	root := chartspec.VConcatOf(trend, chartspec.HConcatOf(stayBars, genderBars)).
		AddParam(chartspec.Dropdown(ParamInsurance, value, options, "Insurance type ")).
		Titled(chartspec.Title{Text: "SPARCS discharges"})
	return chartspec.NewDocument(root), nil
}

// CrossHighlight bins the age and insurance cells by discharges and stay
// into a count heatmap. Clicking an age group bar overlays points sized by
// the cells of that group; nothing is overlaid until a bar is picked.
func CrossHighlight(tbl *model.ResultTable, _ Params) (*chartspec.Document, error) {
	if err := require(tbl, aggregate.ColAgeGroup, aggregate.ColDischarges, aggregate.ColAvgStay); err != nil {
		return nil, err
	}
	binned := func(def chartspec.FieldDef) chartspec.Channel {
		def.Bin = true
		def.Format = ""
		return chartspec.Field(def)
	}
	heat := chartspec.Count("Total cells")
	if def, ok := heat.FieldDef(); ok {
		def.Scale = &chartspec.Scale{Scheme: "greenblue"}
		heat = chartspec.Field(def)
	}

	rect := chartspec.NewChart(tbl, chartspec.MarkRect).
		Encode(chartspec.X, binned(dischargesDef)).
		Encode(chartspec.Y, binned(stayDef)).
		Encode(chartspec.Color, heat)
	points := rect.Copy().
		Mark(chartspec.MarkPoint).
		Transform(chartspec.FilterBy(chartspec.ParamPredicate(selectAge).WhenEmpty(false))).
		Encode(chartspec.Color, chartspec.Value("grey")).
		Encode(chartspec.Size, chartspec.Count("Cells in selection"))
	bars := chartspec.NewChart(tbl, chartspec.MarkBar).
		Encode(chartspec.X, chartspec.Field(ageDef)).
		Encode(chartspec.Y, chartspec.Count("Cells")).
		Encode(chartspec.Color, chartspec.If(
			chartspec.ParamPredicate(selectAge),
			chartspec.Value(baseColor),
			chartspec.Value("grey"),
		)).
		AddParam(chartspec.PointOn(selectAge, chartspec.X)).
		Size(550, 200)

	root := chartspec.VConcatOf(
		chartspec.Layer(rect, points).ResolveScale(chartspec.Size, chartspec.Independent),
		bars,
	).
		ResolveLegend(chartspec.Color, chartspec.Independent).
		ResolveLegend(chartspec.Size, chartspec.Independent).
		Titled(chartspec.Title{Text: "Discharges against stay, highlighted by age group"})
	return chartspec.NewDocument(root), nil
}

func distinctUnion(column string, tables ...*model.ResultTable) []any {
	var out []any
	for _, t := range tables {
		for _, v := range t.Distinct(column) {
			dup := false
			for _, seen := range out {
				if model.EqualValues(seen, v) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, v)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return model.CompareValues(out[i], out[j]) < 0 })
	return out
}

func withAxis(def chartspec.FieldDef, axis *chartspec.Axis) chartspec.FieldDef {
	def.Axis = axis
	return def
}

func withDefault(p Params, name, value string) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[name] = value
	return out
}
