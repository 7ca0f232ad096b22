package chartspec

import "github.com/verte-zerg/sparcsviz/internal/model"

// Transform is a data operation applied before encoding. Transforms run in
// declaration order, each on the output of the previous one.
type Transform interface {
	isTransform()
}

// Filter keeps the rows for which the predicate holds. A ParamPredicate
// filters by selection.
type Filter struct {
	Predicate Predicate
}

// Calculate derives a column. Either Param is set, aliasing the column the
// named variable parameter currently holds, or Expr is an expression whose
// datum.name and datum["name"] references must all be visible columns.
type Calculate struct {
	As    string
	Type  model.FieldType
	Param string
	Expr  string
}

// AggregateOp reduces Field with Op into column As.
type AggregateOp struct {
	Op    string
	Field string
	As    string
}

// Aggregate groups rows and reduces them. Only GroupBy and the As columns
// survive.
type Aggregate struct {
	Ops     []AggregateOp
	GroupBy []string
}

// WindowOp computes Op over the window into column As.
type WindowOp struct {
	Op string
	As string
}

// Window adds window-computed columns.
type Window struct {
	Ops     []WindowOp
	GroupBy []string
	Sort    []string
}

// Regression fits Regression as a function of On. Only those two columns
// survive.
type Regression struct {
	On         string
	Regression string
	Method     string
}

func (Filter) isTransform()     {}
func (Calculate) isTransform()  {}
func (Aggregate) isTransform()  {}
func (Window) isTransform()     {}
func (Regression) isTransform() {}

// FilterBy filters by a predicate.
func FilterBy(p Predicate) Filter { return Filter{Predicate: p} }

// AliasParam copies the column named by the variable parameter's current
// value into column as.
func AliasParam(as, param string, t model.FieldType) Calculate {
	return Calculate{As: as, Type: t, Param: param}
}

// RowNumber numbers rows into column as.
func RowNumber(as string) Window {
	return Window{Ops: []WindowOp{{Op: "row_number", As: as}}}
}

// Mean groups by the given columns and averages field into as.
func Mean(field, as string, groupBy ...string) Aggregate {
	return Aggregate{Ops: []AggregateOp{{Op: "mean", Field: field, As: as}}, GroupBy: groupBy}
}

// LinearFit is a linear regression of y on x.
func LinearFit(x, y string) Regression {
	return Regression{On: x, Regression: y, Method: "linear"}
}
