package chartspec

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

func yearTable() *model.ResultTable {
	return model.MustResultTable("by_year", []model.Column{
		{Name: "year", Type: model.Quantitative},
		{Name: "discharges", Type: model.Quantitative},
	}, []model.Row{
		{"year": 2018, "discharges": 1200},
		{"year": 2019, "discharges": 1350},
		{"year": 2020, "discharges": 990},
		{"year": 2021, "discharges": 1410},
	})
}

func insuranceTable() *model.ResultTable {
	return model.MustResultTable("by_year_insurance", []model.Column{
		{Name: "year", Type: model.Quantitative},
		{Name: "insurance_type", Type: model.Nominal},
		{Name: "discharges", Type: model.Quantitative},
	}, []model.Row{
		{"year": 2019, "insurance_type": "Medicaid", "discharges": 10},
		{"year": 2019, "insurance_type": "Medicare", "discharges": 12},
		{"year": 2020, "insurance_type": "Medicaid", "discharges": 8},
	})
}

func highlightChart(tbl *model.ResultTable) *Chart {
	return NewChart(tbl, MarkBar).
		Encode(X, F("year", model.Ordinal)).
		Encode(Y, F("discharges", model.Quantitative)).
		Encode(Color, If(FieldEquals("year", 2020), Value("orange"), Value("steelblue"))).
		Size(600, 0)
}

func mustSerialize(t *testing.T, d *Document) []byte {
	t.Helper()
	b, err := d.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return b
}

func expectInvalid(t *testing.T, d *Document, fragment string) {
	t.Helper()
	err := d.Validate()
	if !stderrors.Is(err, apperrors.ErrValidationFailed) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(err.Error(), fragment) {
		t.Fatalf("expected %q in %q", fragment, err.Error())
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	first := mustSerialize(t, NewDocument(highlightChart(yearTable())))
	second := mustSerialize(t, NewDocument(highlightChart(yearTable())))
	if !bytes.Equal(first, second) {
		t.Fatalf("serialization differs:\n%s\n%s", first, second)
	}
	if !strings.Contains(string(first), `"$schema":"`+SchemaURL+`"`) {
		t.Fatalf("missing schema in %s", first)
	}
}

func TestSerializeConditionalColor(t *testing.T) {
	b := mustSerialize(t, NewDocument(highlightChart(yearTable())))
	if got := gjson.GetBytes(b, "encoding.color.condition.test.field").String(); got != "year" {
		t.Fatalf("expected condition on year, got %q", got)
	}
	if got := gjson.GetBytes(b, "encoding.color.condition.test.equal").Int(); got != 2020 {
		t.Fatalf("expected condition year 2020, got %d", got)
	}
	if got := gjson.GetBytes(b, "encoding.color.condition.value").String(); got != "orange" {
		t.Fatalf("expected highlight orange, got %q", got)
	}
	if got := gjson.GetBytes(b, "encoding.color.value").String(); got != "steelblue" {
		t.Fatalf("expected default steelblue, got %q", got)
	}
	name := gjson.GetBytes(b, "data.name").String()
	if !strings.HasPrefix(name, "data-") {
		t.Fatalf("expected content-addressed dataset, got %q", name)
	}
	if n := len(gjson.GetBytes(b, "datasets."+name).Array()); n != 4 {
		t.Fatalf("expected 4 dataset rows, got %d", n)
	}
}

func TestLayerSharesDataset(t *testing.T) {
	tbl := yearTable()
	bars := NewChart(tbl, MarkBar).
		Encode(X, F("year", model.Quantitative)).
		Encode(Y, F("discharges", model.Quantitative))
	line := NewChart(tbl, MarkLine).
		Encode(X, F("year", model.Quantitative)).
		Encode(Y, F("discharges", model.Quantitative)).
		Transform(LinearFit("year", "discharges"))
	b := mustSerialize(t, NewDocument(Layer(bars, line)))

	layer := gjson.GetBytes(b, "layer").Array()
	if len(layer) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layer))
	}
	if layer[0].Get("data.name").String() != layer[1].Get("data.name").String() {
		t.Fatalf("layers reference different datasets")
	}
	if n := len(gjson.GetBytes(b, "datasets").Map()); n != 1 {
		t.Fatalf("expected one shared dataset, got %d", n)
	}
	if got := layer[1].Get("transform.0.method").String(); got != "linear" {
		t.Fatalf("expected linear regression, got %q", got)
	}
}

func TestIdenticalTablesShareDataset(t *testing.T) {
	a, err := DatasetName(yearTable())
	if err != nil {
		t.Fatalf("dataset name: %v", err)
	}
	b, _ := DatasetName(yearTable())
	c, _ := DatasetName(insuranceTable())
	if a != b {
		t.Fatalf("equal tables named differently: %s %s", a, b)
	}
	if a == c {
		t.Fatalf("different tables share name %s", a)
	}
}

func TestValidateUnknownField(t *testing.T) {
	c := NewChart(yearTable(), MarkBar).
		Encode(X, F("year", model.Ordinal)).
		Encode(Y, F("admissions", model.Quantitative))
	expectInvalid(t, NewDocument(c), `field "admissions" not found`)
	if _, err := NewDocument(c).Serialize(); err == nil {
		t.Fatalf("serialize must refuse an invalid document")
	}
}

func TestValidateTracksTransformFields(t *testing.T) {
	table := func() *Chart {
		return NewChart(insuranceTable(), MarkText).
			Encode(Y, F("row_number", model.Ordinal)).
			Encode(Text, F("insurance_type", model.Nominal))
	}
	expectInvalid(t, NewDocument(table()), `field "row_number" not found`)

	ok := table().Transform(RowNumber("row_number"), FilterBy(FieldLess("row_number", 15)))
	if err := NewDocument(ok).Validate(); err != nil {
		t.Fatalf("window output should resolve: %v", err)
	}

	agg := NewChart(insuranceTable(), MarkBar).
		Transform(Mean("discharges", "mean_discharges", "year")).
		Encode(X, F("year", model.Ordinal)).
		Encode(Y, F("mean_discharges", model.Quantitative)).
		Encode(Color, F("insurance_type", model.Nominal))
	expectInvalid(t, NewDocument(agg), `field "insurance_type" not found`)
}

func TestValidateCalculateExpressionFields(t *testing.T) {
	derived := func(expr string) *Document {
		return NewDocument(NewChart(yearTable(), MarkBar).
			Transform(Calculate{As: "doubled", Type: model.Quantitative, Expr: expr}).
			Encode(X, F("year", model.Ordinal)).
			Encode(Y, F("doubled", model.Quantitative)))
	}
	expectInvalid(t, derived("datum.admissions * 2"), `field "admissions" not found`)
	expectInvalid(t, derived(`datum["admissions"] + datum.year`), `field "admissions" not found`)
	expectInvalid(t, derived(`datum['stay'] / 2`), `field "stay" not found`)
	if _, err := derived("datum.admissions * 2").Serialize(); err == nil {
		t.Fatalf("serialize must refuse an expression over a missing field")
	}
	if err := derived(`datum.discharges * 2 + datum["year"]`).Validate(); err != nil {
		t.Fatalf("expression over visible fields should validate: %v", err)
	}
	got := exprRefs(`datum.a + datum["b c"] - datum['a'] * datum . x`)
	if strings.Join(got, ",") != "a,b c" {
		t.Fatalf("unexpected refs %v", got)
	}
}

func TestValidateTypeCompatibility(t *testing.T) {
	bad := NewChart(insuranceTable(), MarkBar).
		Encode(X, F("insurance_type", model.Quantitative)).
		Encode(Y, F("discharges", model.Quantitative))
	expectInvalid(t, NewDocument(bad), "cannot encode as quantitative")

	agg := NewChart(insuranceTable(), MarkBar).
		Encode(X, F("year", model.Ordinal)).
		Encode(Y, Field(FieldDef{Field: "insurance_type", Type: model.Nominal, Aggregate: "sum"}))
	expectInvalid(t, NewDocument(agg), "aggregated channel must be quantitative")

	good := NewChart(insuranceTable(), MarkBar).
		Encode(X, F("year", model.Ordinal)).
		Encode(Y, Field(FieldDef{Field: "discharges", Type: model.Quantitative, Aggregate: "sum"})).
		Encode(Color, F("insurance_type", model.Ordinal))
	if err := NewDocument(good).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateParamReferences(t *testing.T) {
	points := func() *Chart {
		return NewChart(insuranceTable(), MarkPoint).
			Encode(X, F("year", model.Quantitative)).
			Encode(Y, F("discharges", model.Quantitative))
	}
	filtered := NewChart(insuranceTable(), MarkText).
		Encode(Text, F("insurance_type", model.Nominal)).
		Transform(FilterBy(ParamPredicate("brush")))

	expectInvalid(t, NewDocument(HConcatOf(points(), filtered)), `param "brush" is not declared`)

	linked := HConcatOf(points().AddParam(Interval("brush", X, Y)), filtered)
	if err := NewDocument(linked).Validate(); err != nil {
		t.Fatalf("sibling declaration should resolve: %v", err)
	}

	dup := HConcatOf(points().AddParam(Interval("brush", X)), points().AddParam(Interval("brush", Y)))
	expectInvalid(t, NewDocument(dup), `param "brush" declared more than once`)

	brushOnColor := points().AddParam(Interval("brush", Color))
	expectInvalid(t, NewDocument(brushOnColor), `selection encoding "color" is not encoded`)

	onComposition := HConcatOf(points()).AddParam(Interval("brush", X))
	expectInvalid(t, NewDocument(onComposition), "must be declared on a unit chart")
}

func TestValidateMarkRules(t *testing.T) {
	textOnBar := NewChart(yearTable(), MarkBar).
		Encode(X, F("year", model.Ordinal)).
		Encode(Text, F("discharges", model.Quantitative))
	expectInvalid(t, NewDocument(textOnBar), "text channel needs a text mark")

	lineWithoutY := NewChart(yearTable(), MarkLine).Encode(X, F("year", model.Quantitative))
	expectInvalid(t, NewDocument(lineWithoutY), "line mark needs both x and y")

	bareBar := NewChart(yearTable(), MarkBar)
	expectInvalid(t, NewDocument(bareBar), "bar mark needs x or y")
}

func TestValidateAliasParamOptions(t *testing.T) {
	alias := func(options ...any) *Composition {
		c := NewChart(insuranceTable(), MarkBar).
			Transform(AliasParam("value", "measure", model.Quantitative)).
			Encode(X, F("year", model.Ordinal)).
			Encode(Y, F("value", model.Quantitative))
		return HConcatOf(c).AddParam(Dropdown("measure", options[0], options, "Measure "))
	}
	if err := NewDocument(alias("discharges", "year")).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectInvalid(t, NewDocument(alias("discharges", "insurance_type")), `option "insurance_type" is nominal`)
	expectInvalid(t, NewDocument(alias("discharges", "beds")), "option beds is not a field")
}

func TestFieldParamFilterExpression(t *testing.T) {
	c := NewChart(insuranceTable(), MarkBar).
		Transform(FilterBy(FieldEqualsParam("insurance_type", "insurance"))).
		Encode(X, F("year", model.Ordinal)).
		Encode(Y, F("discharges", model.Quantitative))
	opts := []any{"Medicaid", "Medicare"}
	b := mustSerialize(t, NewDocument(HConcatOf(c).AddParam(Dropdown("insurance", "Medicare", opts, "Insurance "))))

	if got := gjson.GetBytes(b, "hconcat.0.transform.0.filter").String(); got != `datum["insurance_type"] == insurance` {
		t.Fatalf("unexpected filter expression %q", got)
	}
	if got := gjson.GetBytes(b, "params.0.bind.input").String(); got != "select" {
		t.Fatalf("expected select binding, got %q", got)
	}
	if got := gjson.GetBytes(b, "params.0.bind.options.#").Int(); got != 2 {
		t.Fatalf("expected 2 options, got %d", got)
	}
}

func TestViewStrokeAndPretty(t *testing.T) {
	d := NewDocument(highlightChart(yearTable())).ViewStroke("")
	b := mustSerialize(t, d)
	stroke := gjson.GetBytes(b, "config.view.stroke")
	if !stroke.Exists() || stroke.Type != gjson.Null {
		t.Fatalf("expected null view stroke, got %v", stroke.Raw)
	}
	p, err := d.Pretty()
	if err != nil {
		t.Fatalf("pretty: %v", err)
	}
	if !gjson.ValidBytes(p) || !bytes.Contains(p, []byte("\n  ")) {
		t.Fatalf("expected indented JSON, got %s", p)
	}
}

func TestEvalConditional(t *testing.T) {
	tbl := yearTable()
	ch, _ := highlightChart(tbl).Channel(Color)
	for i := 0; i < tbl.Len(); i++ {
		got, err := ch.Eval(tbl.Row(i), State{})
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		want := "steelblue"
		if tbl.Value(i, "year") == int64(2020) {
			want = "orange"
		}
		if got != want {
			t.Fatalf("year %v: expected %s, got %v", tbl.Value(i, "year"), want, got)
		}
	}
}

func TestEvalSelections(t *testing.T) {
	opacity := If(ParamPredicate("legend"), Value(1.0), Value(0.2))
	row := model.Row{"insurance_type": "Medicare"}

	got, _ := opacity.Eval(row, State{})
	if got != 1.0 {
		t.Fatalf("empty selection should select everything, got %v", got)
	}
	st := State{Selections: map[string]func(model.Row) bool{
		"legend": func(r model.Row) bool { return r["insurance_type"] == "Medicaid" },
	}}
	got, _ = opacity.Eval(row, st)
	if got != 0.2 {
		t.Fatalf("expected unselected opacity, got %v", got)
	}

	byParam := If(FieldEqualsParam("insurance_type", "insurance"), F("insurance_type", model.Nominal), Value("grey"))
	got, err := byParam.Eval(row, State{Values: map[string]any{"insurance": "Medicare"}})
	if err != nil || got != "Medicare" {
		t.Fatalf("expected field branch, got %v (%v)", got, err)
	}
	if _, err := byParam.Eval(row, State{}); err == nil {
		t.Fatalf("expected error for unset param")
	}
}
