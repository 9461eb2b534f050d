package model

import "fmt"

//
// Error taxonomy
//
// None of these errors is recoverable mid-pipeline: each stage depends on
// the full output of the previous one, so any error aborts that country's
// run. The other country's pipeline is unaffected.
//

// SchemaError means a declared join key or column is absent from an input
// table. It is raised while loading, before any filtering happens, so a
// wrong schema can never silently produce all-missing columns.
type SchemaError struct {
	// Table is the logical name of the offending input table.
	Table string

	// Column is the missing column name.
	Column string
}

// Error implements error.
func (err *SchemaError) Error() string {
	return fmt.Sprintf("schema: table %q has no column %q", err.Table, err.Column)
}

// CohortEmptyError means filtering left zero usable rows.
type CohortEmptyError struct {
	// Country is the country whose pipeline failed.
	Country string

	// Stage identifies the filter that emptied the cohort.
	Stage string
}

// Error implements error.
func (err *CohortEmptyError) Error() string {
	return fmt.Sprintf("cohort: %s: no rows survive the %s filter", err.Country, err.Stage)
}

// EstimationError means a model fit failed: a contrast level with zero
// observations, a zero-variance covariate, or fewer than two clusters.
type EstimationError struct {
	// Estimator is the estimator that failed.
	Estimator string

	// Reason describes the failure.
	Reason string
}

// Error implements error.
func (err *EstimationError) Error() string {
	return fmt.Sprintf("estimation: %s: %s", err.Estimator, err.Reason)
}

// ReportingError means an EstimateResult was missing when the aggregator ran.
type ReportingError struct {
	// Country is the country with incomplete results.
	Country string

	// Detail describes what was missing.
	Detail string
}

// Error implements error.
func (err *ReportingError) Error() string {
	return fmt.Sprintf("reporting: %s: %s", err.Country, err.Detail)
}
