// Package model contains the shared data model.
//
// The types in this package flow between the pipeline stages: the dataset
// loader produces rows that the cohort builder turns into a [*Cohort] of
// [ChildRecord], the estimators consume the cohort together with a
// [CovariateSet] and a [Contrast], and every estimator emits an immutable
// [EstimateResult] consumed only by the report aggregator.
//
// This package also defines the error taxonomy ([SchemaError],
// [CohortEmptyError], [EstimationError], [ReportingError]) and the [Logger]
// interface, which is out of the box compatible with `log.Log` in `apex/log`.
package model
