// Package errors provides the coded error taxonomy shared by the chart core
// and its boundaries.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Startup errors
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"
	CodeQuerySyntax       Code = "QUERY_SYNTAX"
	CodeAggregationFailed Code = "AGGREGATION_FAILED"

	// Request errors
	CodeUnknownChartKind Code = "UNKNOWN_CHART_KIND"
	CodeBuildFailed      Code = "BUILD_FAILED"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeNotFound         Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnknownChartKind, CodeNotFound:
		return http.StatusNotFound
	case CodeBuildFailed, CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Fatal reports whether errors with this code must abort startup.
func (c Code) Fatal() bool {
	switch c {
	case CodeStoreUnavailable, CodeQuerySyntax, CodeAggregationFailed:
		return true
	}
	return false
}
