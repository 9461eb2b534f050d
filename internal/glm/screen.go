package glm

import (
	"math"

	"github.com/washb/sanlaz/internal/model"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ScreenThreshold is the pre-specified likelihood-ratio p-value below
// which a candidate covariate is retained in the adjusted model.
const ScreenThreshold = 0.20

// ScreenDecision records the screening outcome for one covariate.
type ScreenDecision struct {
	// Covariate is the covariate name.
	Covariate string

	// PValue is the likelihood-ratio test p-value.
	PValue float64

	// Retained says whether the covariate enters the adjusted model.
	Retained bool
}

// Screen performs likelihood-ratio covariate screening: each candidate is
// tested alone against the intercept-only model on its own complete
// cases, and retained when the test p-value is below ScreenThreshold.
// The candidate list is fixed and ordered, so given the same data the
// same covariates are retained on every run.
//
// Covariates whose single-covariate design cannot be built (no complete
// cases, or zero variance) are dropped with a recorded NaN p-value
// rather than failing the whole adjusted fit.
func Screen(records []model.ChildRecord, covariates model.CovariateSet) (model.CovariateSet, []ScreenDecision) {
	var retained model.CovariateSet
	var decisions []ScreenDecision
	for _, spec := range covariates {
		pvalue, err := screenOne(records, spec)
		if err != nil {
			decisions = append(decisions, ScreenDecision{Covariate: spec.Name, PValue: math.NaN(), Retained: false})
			continue
		}
		keep := pvalue < ScreenThreshold
		decisions = append(decisions, ScreenDecision{Covariate: spec.Name, PValue: pvalue, Retained: keep})
		if keep {
			retained = append(retained, spec)
		}
	}
	return retained, decisions
}

// screenOne compares outcome ~ 1 against outcome ~ covariate by a
// likelihood-ratio test on the covariate's complete cases.
func screenOne(records []model.ChildRecord, spec model.CovariateSpec) (float64, error) {
	alternative, err := BuildDesign(records, &DesignOptions{
		Intercept:  true,
		Covariates: model.CovariateSet{spec},
	})
	if err != nil {
		return 0, err
	}
	full, err := Fit(Gaussian, alternative.X, alternative.Names, alternative.Y)
	if err != nil {
		return 0, err
	}

	// The null model must use the same rows as the alternative.
	numRows := len(alternative.Y)
	ones := mat.NewDense(numRows, 1, nil)
	for row := 0; row < numRows; row++ {
		ones.Set(row, 0, 1)
	}
	null, err := Fit(Gaussian, ones, []string{"(Intercept)"}, alternative.Y)
	if err != nil {
		return 0, err
	}

	df := len(full.Coef) - len(null.Coef)
	statistic := 2 * (full.LogLik - null.LogLik)
	if statistic < 0 {
		statistic = 0
	}
	chi2 := distuv.ChiSquared{K: float64(df)}
	return chi2.Survival(statistic), nil
}
