// Package estimate orchestrates the three effect estimators over the
// declared exposure contrast: the unadjusted GLM, the covariate-adjusted
// GLM with likelihood-ratio prescreening, and the double-robust TMLE.
//
// All three estimate the mean difference in the outcome between the
// exposed and baseline contrast levels, with cluster-robust inference at
// the randomization block. The shared validity checks live
// here so every estimator fails identically on an empty contrast level or
// a cohort with fewer than two blocks.
package estimate

import (
	"math"

	"github.com/washb/sanlaz/internal/glm"
	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/tmle"
)

// Request bundles the estimator inputs for one country.
type Request struct {
	// Cohort is the analysis cohort.
	Cohort *model.Cohort

	// Contrast declares the compared levels (exposed minus baseline).
	Contrast model.Contrast

	// Covariates is the pre-specified covariate set, already releveled.
	Covariates model.CovariateSet

	// Seed seeds the TMLE cross-validation folds; zero means
	// tmle.DefaultSeed.
	Seed int64

	// OnFold forwards TMLE fold progress, when not nil.
	OnFold func(fold, total int)
}

// Results is the ordered estimator output for one country.
type Results struct {
	// Country is the cohort's country label.
	Country string

	// Unadjusted, Adjusted, and DoubleRobust are the three estimates,
	// in presentation order.
	Unadjusted   *model.EstimateResult
	Adjusted     *model.EstimateResult
	DoubleRobust *model.EstimateResult

	// Screening records the adjusted model's covariate decisions.
	Screening []glm.ScreenDecision

	// Retained is the screened covariate set the adjusted GLM used.
	Retained model.CovariateSet
}

// Ordered returns the three estimates in presentation order.
func (r *Results) Ordered() []model.EstimateResult {
	return []model.EstimateResult{*r.Unadjusted, *r.Adjusted, *r.DoubleRobust}
}

// RunAll runs the three estimators. The unadjusted and adjusted GLMs are
// deterministic; the TMLE is deterministic given the request seed.
func RunAll(req *Request, logger model.Logger) (*Results, error) {
	results := &Results{Country: req.Cohort.Country}

	unadjusted, err := Unadjusted(req.Cohort, req.Contrast)
	if err != nil {
		return nil, err
	}
	results.Unadjusted = unadjusted
	logger.Infof("estimate: %s: unadjusted %.3f", req.Cohort.Country, unadjusted.Estimate)

	adjusted, retained, screening, err := Adjusted(req.Cohort, req.Contrast, req.Covariates, logger)
	if err != nil {
		return nil, err
	}
	results.Adjusted = adjusted
	results.Retained = retained
	results.Screening = screening
	logger.Infof("estimate: %s: adjusted %.3f (%d covariates retained)",
		req.Cohort.Country, adjusted.Estimate, len(retained))

	doubleRobust, err := tmle.Estimate(req.Cohort, &tmle.Config{
		Contrast:   req.Contrast,
		Covariates: req.Covariates,
		Seed:       req.Seed,
		OnFold:     req.OnFold,
	}, logger)
	if err != nil {
		return nil, err
	}
	results.DoubleRobust = doubleRobust
	logger.Infof("estimate: %s: tmle %.3f", req.Cohort.Country, doubleRobust.Estimate)

	return results, nil
}

// Unadjusted regresses the outcome on the binary contrast indicator only,
// with cluster-robust standard errors. With a single binary regressor the
// coefficient is exactly the difference in level means.
func Unadjusted(cohort *model.Cohort, contrast model.Contrast) (*model.EstimateResult, error) {
	records := contrastSubset(cohort, contrast)
	if err := checkContrast(model.EstimatorUnadjusted, records, contrast); err != nil {
		return nil, err
	}
	design, err := glm.BuildDesign(records, &glm.DesignOptions{
		Intercept: true,
		Treatment: &contrast,
	})
	if err != nil {
		return nil, asEstimation(model.EstimatorUnadjusted, err)
	}
	return fitContrast(model.EstimatorUnadjusted, design)
}

// Adjusted screens the covariates by likelihood-ratio test, then fits the
// outcome on the contrast indicator plus the retained covariates.
func Adjusted(cohort *model.Cohort, contrast model.Contrast, covariates model.CovariateSet,
	logger model.Logger) (*model.EstimateResult, model.CovariateSet, []glm.ScreenDecision, error) {
	records := contrastSubset(cohort, contrast)
	if err := checkContrast(model.EstimatorAdjusted, records, contrast); err != nil {
		return nil, nil, nil, err
	}

	retained, screening := glm.Screen(records, covariates)
	for _, decision := range screening {
		logger.Debugf("estimate: screen %s: p=%.4f retained=%v",
			decision.Covariate, decision.PValue, decision.Retained)
	}

	design, err := glm.BuildDesign(records, &glm.DesignOptions{
		Intercept:  true,
		Treatment:  &contrast,
		Covariates: retained,
	})
	if err != nil {
		return nil, nil, nil, asEstimation(model.EstimatorAdjusted, err)
	}
	dropped := len(records) - len(design.Kept)
	if dropped > 0 {
		logger.Debugf("estimate: adjusted: dropped %d incomplete cases", dropped)
	}
	result, err := fitContrast(model.EstimatorAdjusted, design)
	if err != nil {
		return nil, nil, nil, err
	}
	return result, retained, screening, nil
}

// fitContrast fits the gaussian GLM and extracts the exposure row of the
// cluster-robust inference.
func fitContrast(estimator string, design *glm.Design) (*model.EstimateResult, error) {
	if design.CountClusters() < 2 {
		return nil, &model.EstimationError{
			Estimator: estimator,
			Reason:    "fewer than 2 randomization blocks",
		}
	}
	fit, err := glm.Fit(glm.Gaussian, design.X, design.Names, design.Y)
	if err != nil {
		return nil, asEstimation(estimator, err)
	}
	inference, err := fit.ClusterRobust(design.Clusters)
	if err != nil {
		return nil, asEstimation(estimator, err)
	}
	for _, coefficient := range inference {
		if coefficient.Name != "exposure" {
			continue
		}
		if math.IsNaN(coefficient.Estimate) || math.IsInf(coefficient.Estimate, 0) {
			return nil, &model.EstimationError{
				Estimator: estimator,
				Reason:    "non-finite point estimate",
			}
		}
		return &model.EstimateResult{
			Estimator: estimator,
			Estimate:  coefficient.Estimate,
			Lower:     coefficient.Lower,
			Upper:     coefficient.Upper,
			PValue:    coefficient.PValue,
		}, nil
	}
	return nil, &model.EstimationError{
		Estimator: estimator,
		Reason:    "exposure coefficient missing from fit",
	}
}

func contrastSubset(cohort *model.Cohort, contrast model.Contrast) []model.ChildRecord {
	var records []model.ChildRecord
	for idx := range cohort.Children {
		exposure := cohort.Children[idx].Exposure
		if exposure == contrast.Baseline || exposure == contrast.Exposed {
			records = append(records, cohort.Children[idx])
		}
	}
	return records
}

// checkContrast fails when either contrast level is empty.
func checkContrast(estimator string, records []model.ChildRecord, contrast model.Contrast) error {
	var baseline, exposed int
	for idx := range records {
		switch records[idx].Exposure {
		case contrast.Baseline:
			baseline++
		case contrast.Exposed:
			exposed++
		}
	}
	if baseline <= 0 || exposed <= 0 {
		return &model.EstimationError{
			Estimator: estimator,
			Reason:    "a contrast level has zero observations",
		}
	}
	return nil
}

func asEstimation(estimator string, err error) error {
	if typed, ok := err.(*model.EstimationError); ok {
		return &model.EstimationError{Estimator: estimator, Reason: typed.Reason}
	}
	return &model.EstimationError{Estimator: estimator, Reason: err.Error()}
}
