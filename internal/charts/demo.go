package charts

import (
	"fmt"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	"github.com/verte-zerg/sparcsviz/internal/chartspec"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

const demoHighlightYear = "2020"

// demoYearly is a fixed statewide series used by the demo kinds.
func demoYearly() *model.ResultTable {
	counts := []int{2_512_000, 2_498_000, 2_471_000, 2_455_000, 2_430_000, 2_419_000, 2_401_000, 2_388_000, 2_067_000, 2_214_000}
	rows := make([]model.Row, len(counts))
	for i, n := range counts {
		rows[i] = model.Row{aggregate.ColYear: 2012 + i, aggregate.ColDischarges: n}
	}
	return model.MustResultTable("demo_yearly", []model.Column{
		{Name: aggregate.ColYear, Type: model.Quantitative},
		{Name: aggregate.ColDischarges, Type: model.Quantitative},
	}, rows)
}

// demoMonthly is a monthly series with a seasonal swing and a dip in
// spring 2020.
func demoMonthly() *model.ResultTable {
	var rows []model.Row
	for year := 2018; year <= 2021; year++ {
		for month := 1; month <= 12; month++ {
			n := 200_000 + 9_000*((month+2)%12) - 4_000*((month+8)%12)
			if year == 2020 && month >= 3 && month <= 5 {
				n -= 60_000
			}
			rows = append(rows, model.Row{
				"month":                 fmt.Sprintf("%d-%02d-01", year, month),
				aggregate.ColDischarges: n,
			})
		}
	}
	return model.MustResultTable("demo_monthly", []model.Column{
		{Name: "month", Type: model.Temporal},
		{Name: aggregate.ColDischarges, Type: model.Quantitative},
	}, rows)
}

// DemoHighlightBar is HighlightBar over the built-in yearly series,
// highlighting 2020 unless asked otherwise.
func DemoHighlightBar(p Params) (*chartspec.Document, error) {
	if _, ok := p[ParamHighlight]; !ok {
		p = withDefault(p, ParamHighlight, demoHighlightYear)
	}
	return HighlightBar(demoYearly(), p)
}

// DemoBrushArea pairs a detail area chart with an overview whose x brush
// sets the detail's x domain.
func DemoBrushArea(_ Params) (*chartspec.Document, error) {
	tbl := demoMonthly()
	month := chartspec.FieldDef{Field: "month", Type: model.Temporal, Title: "Month"}
	detailX := month
	detailX.Scale = &chartspec.Scale{DomainParam: selectBrush}
	y := chartspec.FieldDef{Field: aggregate.ColDischarges, Type: model.Quantitative, Title: "Discharges", Format: countFormat}

	detail := chartspec.NewChart(tbl, chartspec.MarkArea).
		Encode(chartspec.X, chartspec.Field(detailX)).
		Encode(chartspec.Y, chartspec.Field(y)).
		Size(600, 200)
	overview := chartspec.NewChart(tbl, chartspec.MarkArea).
		Encode(chartspec.X, chartspec.Field(month)).
		Encode(chartspec.Y, chartspec.Field(y)).
		AddParam(chartspec.Interval(selectBrush, chartspec.X)).
		Size(600, 60)
	return chartspec.NewDocument(chartspec.VConcatOf(detail, overview)), nil
}
