package model

// Estimator names, in the fixed order the aggregator expects.
const (
	EstimatorUnadjusted   = "Unadjusted GLM"
	EstimatorAdjusted     = "Adjusted GLM"
	EstimatorDoubleRobust = "Adjusted TMLE"
)

// EstimatorOrder is the presentation order of the three estimators.
var EstimatorOrder = []string{
	EstimatorUnadjusted,
	EstimatorAdjusted,
	EstimatorDoubleRobust,
}

// EstimateResult is the output of one estimator run: the mean-difference
// point estimate for the declared contrast, its two-sided 95% confidence
// bounds, and the corresponding p-value. Immutable once computed.
type EstimateResult struct {
	// Estimator is one of the Estimator* constants.
	Estimator string

	// Estimate is the point estimate (exposed minus baseline).
	Estimate float64

	// Lower is the lower confidence bound.
	Lower float64

	// Upper is the upper confidence bound.
	Upper float64

	// PValue is the two-sided p-value in [0, 1].
	PValue float64
}
