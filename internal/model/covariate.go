package model

//
// Covariates
//

// CovariateType distinguishes continuous from categorical covariates.
type CovariateType int

const (
	// Continuous is a numeric covariate entering the model linearly.
	Continuous = CovariateType(iota)

	// Categorical is a factor covariate entering the model as dummy
	// indicators against a declared reference level.
	Categorical
)

// String implements fmt.Stringer.
func (ct CovariateType) String() string {
	switch ct {
	case Continuous:
		return "continuous"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// CovariateSpec declares one adjustment covariate. The set of covariates and
// each categorical covariate's reference level are fixed per country before
// any estimation runs: a general-purpose encoder must never pick the
// reference by alphabetical or first-seen order.
type CovariateSpec struct {
	// Name is the input column name.
	Name string

	// Type says whether the covariate is continuous or categorical.
	Type CovariateType

	// Reference is the reference level of a categorical covariate,
	// always the "no/absence" level (e.g. "No electricity").
	Reference string

	// Levels optionally declares the expected non-reference levels in
	// display order. Levels observed in the data but not declared here
	// are appended in lexicographic order for determinism.
	Levels []string
}

// CovariateSet is the ordered, pre-specified covariate list for a country.
type CovariateSet []CovariateSpec

// Names returns the covariate names in declared order.
func (cs CovariateSet) Names() []string {
	names := make([]string, 0, len(cs))
	for _, spec := range cs {
		names = append(names, spec.Name)
	}
	return names
}
