package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := WrapWithMetadata(CodeAggregationFailed, "aggregation failed",
		map[string]string{"query": "discharges_by_year"}, fmt.Errorf("boom"))
	if !stderrors.Is(err, ErrAggregationFailed) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if stderrors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected different codes not to match")
	}
}

func TestIsTraversesNestedDomainErrors(t *testing.T) {
	inner := New(CodeValidationFailed, "field missing")
	outer := Wrap(CodeBuildFailed, "build highlight-bar", inner)
	wrapped := fmt.Errorf("request: %w", outer)
	if !stderrors.Is(wrapped, ErrBuildFailed) || !stderrors.Is(wrapped, ErrValidationFailed) {
		t.Fatalf("expected both codes reachable through the chain")
	}
	if got := CodeOf(wrapped); got != CodeBuildFailed {
		t.Fatalf("expected outermost code %s, got %s", CodeBuildFailed, got)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("expected %s, got %s", CodeUnknown, got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("expected empty code for nil, got %s", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeUnknownChartKind: http.StatusNotFound,
		CodeBuildFailed:      http.StatusUnprocessableEntity,
		CodeValidationFailed: http.StatusUnprocessableEntity,
		CodeQuerySyntax:      http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeStoreUnavailable, "open source", fmt.Errorf("no such file"))
	if err.Error() != "open source: no such file" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
