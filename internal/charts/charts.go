// Package charts holds one builder per chart kind. Builders are pure
// functions of their tables and request params, so any number may run at
// once against the same Catalog.
package charts

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	"github.com/verte-zerg/sparcsviz/internal/chartspec"
	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

var tracer = otel.Tracer("github.com/verte-zerg/sparcsviz/internal/charts")

// Params are request parameters, e.g. the query string of an HTTP request.
type Params map[string]string

type builder func(tables []*model.ResultTable, p Params) (*chartspec.Document, error)

// Kind describes a registered chart kind.
type Kind struct {
	Name        string
	Description string
	// Tables are the catalog tables the builder reads, in argument order.
	Tables []string
	// Params lists the request params the builder understands.
	Params []string

	build builder
}

func one(fn func(*model.ResultTable, Params) (*chartspec.Document, error)) builder {
	return func(tables []*model.ResultTable, p Params) (*chartspec.Document, error) {
		return fn(tables[0], p)
	}
}

func registry() []Kind {
	return []Kind{
		{
			Name:        "highlight-bar",
			Description: "Discharges per year with one highlighted year",
			Tables:      []string{aggregate.TableDischargesByYear},
			Params:      []string{"highlight"},
			build:       one(HighlightBar),
		},
		{
			Name:        "bar-trendline",
			Description: "Discharges per year with a linear trend line",
			Tables:      []string{aggregate.TableDischargesByYear},
			build:       one(BarTrendline),
		},
		{
			Name:        "stacked-bar-legend",
			Description: "Stacked discharges by insurance type, filterable from the legend",
			Tables:      []string{aggregate.TableDischargesByYearInsurance},
			build:       one(StackedBarLegend),
		},
		{
			Name:        "stacked-area-legend",
			Description: "Streamgraph of discharges by insurance type, filterable from the legend",
			Tables:      []string{aggregate.TableDischargesByYearInsurance},
			build:       one(StackedAreaLegend),
		},
		{
			Name:        "brush-table",
			Description: "Scatter with a brush driving linked text tables",
			Tables:      []string{aggregate.TableDischargesByYearInsurance},
			Params:      []string{"limit"},
			build:       one(BrushTable),
		},
		{
			Name:        "dropdown-insurance",
			Description: "Stay length by age group for the insurance type picked in a dropdown",
			Tables:      []string{aggregate.TableStayByAgeInsurance},
			Params:      []string{"insurance"},
			build:       one(DropdownInsurance),
		},
		{
			Name:        "dropdown-measure",
			Description: "Mean of the measure picked in a dropdown by age group",
			Tables:      []string{aggregate.TableUtilizationByAgeInsurance},
			Params:      []string{"measure"},
			build:       one(DropdownMeasure),
		},
		{
			Name:        "cross-highlight",
			Description: "Binned discharges against stay, cross-highlighted from an age group bar",
			Tables:      []string{aggregate.TableUtilizationByAgeInsurance},
			build:       one(CrossHighlight),
		},
		{
			Name:        "dashboard",
			Description: "Trend, stay and gender views sharing one insurance dropdown",
			Tables: []string{
				aggregate.TableDischargesByYearInsurance,
				aggregate.TableStayByAgeInsurance,
				aggregate.TableDischargesByGender,
			},
			Params: []string{"insurance"},
			build: func(tables []*model.ResultTable, p Params) (*chartspec.Document, error) {
				return Dashboard(tables[0], tables[1], tables[2], p)
			},
		},
		{
			Name:        "demo-highlight-bar",
			Description: "Highlighted bar over a built-in table",
			Params:      []string{"highlight"},
			build: func(_ []*model.ResultTable, p Params) (*chartspec.Document, error) {
				return DemoHighlightBar(p)
			},
		},
		{
			Name:        "demo-brush-area",
			Description: "Detail area zoomed by a brush on an overview, over a built-in table",
			build: func(_ []*model.ResultTable, p Params) (*chartspec.Document, error) {
				return DemoBrushArea(p)
			},
		},
	}
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	var out []string
	for _, k := range registry() {
		out = append(out, k.Name)
	}
	sort.Strings(out)
	return out
}

// Describe returns every registered kind, sorted by name.
func Describe() []Kind {
	out := registry()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a kind by name.
func Lookup(name string) (Kind, bool) {
	for _, k := range registry() {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

// Build builds and validates the document for kind.
func Build(cat *aggregate.Catalog, kind string, params map[string]string) (*chartspec.Document, error) {
	return BuildContext(context.Background(), cat, kind, params)
}

// BuildContext is Build recorded as a trace span under ctx.
func BuildContext(ctx context.Context, cat *aggregate.Catalog, kind string, params map[string]string) (*chartspec.Document, error) {
	_, span := tracer.Start(ctx, "charts.Build")
	defer span.End()
	span.SetAttributes(attribute.String("chart.kind", kind))

	doc, err := build(cat, kind, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		return nil, err
	}
	return doc, nil
}

func build(cat *aggregate.Catalog, kind string, params map[string]string) (*chartspec.Document, error) {
	k, ok := Lookup(kind)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeUnknownChartKind,
			"unknown chart kind", map[string]string{"kind": kind})
	}
	tables := make([]*model.ResultTable, len(k.Tables))
	for i, name := range k.Tables {
		if cat == nil {
			return nil, buildError("no catalog loaded", map[string]string{"kind": kind})
		}
		t, ok := cat.Table(name)
		if !ok {
			return nil, buildError("table not in catalog", map[string]string{"kind": kind, "table": name})
		}
		tables[i] = t
	}
	doc, err := k.build(tables, Params(params))
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeBuildFailed,
			"chart failed validation", map[string]string{"kind": kind}, err)
	}
	return doc, nil
}

func buildError(reason string, metadata map[string]string) error {
	return apperrors.WithMetadata(apperrors.CodeBuildFailed, reason, metadata)
}

// require fails with a BuildError naming the columns tbl lacks.
func require(tbl *model.ResultTable, columns ...string) error {
	if tbl == nil {
		return buildError("no table", nil)
	}
	missing := tbl.Require(columns...)
	if len(missing) == 0 {
		return nil
	}
	return buildError("missing columns", map[string]string{
		"table":   tbl.Name(),
		"columns": strings.Join(missing, ","),
	})
}

func (p Params) intParam(name string, def, lo, hi int) (int, error) {
	s, ok := p[name]
	if !ok || s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, buildError("invalid param", map[string]string{
			"param": name,
			"value": s,
			"range": strconv.Itoa(lo) + ".." + strconv.Itoa(hi),
		})
	}
	return n, nil
}

// choose returns the option the param names, or the first option when
// the param is absent.
func (p Params) choose(name string, options []any) (any, error) {
	if len(options) == 0 {
		return nil, buildError("no values to choose from", map[string]string{"param": name})
	}
	s, ok := p[name]
	if !ok || s == "" {
		return options[0], nil
	}
	for _, o := range options {
		if model.EqualValues(o, s) || displayValue(o) == s {
			return o, nil
		}
	}
	return nil, buildError("value not among options", map[string]string{"param": name, "value": s})
}

func displayValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}
