// Package tmle implements the targeted maximum likelihood estimator of
// the mean-difference effect of the sanitation contrast on the outcome.
//
// Both nuisance models, the outcome regression Q(A,W) and the exposure
// propensity g(W), are fit by the cross-validated super learner over the
// fixed learner library. The initial plug-in estimate is then fluctuated
// along the clever covariate to solve the efficient influence curve
// equation, and the variance comes from the influence curve aggregated at
// the randomization-block level, so within-block correlation is respected.
//
// The fold seed is the only randomness: runs with the same seed and the
// same cohort are bit-identical.
package tmle

import (
	"math"
	"strconv"

	"github.com/washb/sanlaz/internal/glm"
	"github.com/washb/sanlaz/internal/learner"
	"github.com/washb/sanlaz/internal/model"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSeed is the documented cross-validation fold seed. It is fixed
// here rather than taken from ambient randomness so that the published
// numbers can be regenerated exactly.
const DefaultSeed = 12345

// Default propensity bounds: g is truncated into this interval before
// the clever covariate is formed.
const (
	DefaultLowerBound = 0.025
	DefaultUpperBound = 0.975
)

// Config configures the estimator.
type Config struct {
	// Contrast declares the two exposure levels; the estimate is
	// Exposed minus Baseline.
	Contrast model.Contrast

	// Covariates is the pre-specified covariate set for both nuisance
	// models.
	Covariates model.CovariateSet

	// Learners is the candidate library; nil means learner.Library().
	Learners []learner.Learner

	// Folds is the number of CV folds; zero means 10.
	Folds int

	// Seed seeds the CV folds; zero means DefaultSeed.
	Seed int64

	// LowerBound and UpperBound truncate the propensity; zero values
	// mean the defaults.
	LowerBound float64
	UpperBound float64

	// OnFold, when not nil, receives fold-completion progress for both
	// nuisance fits.
	OnFold func(fold, total int)
}

func (cfg *Config) learners() []learner.Learner {
	if cfg.Learners != nil {
		return cfg.Learners
	}
	return learner.Library()
}

func (cfg *Config) seed() int64 {
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return DefaultSeed
}

func (cfg *Config) bounds() (float64, float64) {
	lo, hi := cfg.LowerBound, cfg.UpperBound
	if lo <= 0 {
		lo = DefaultLowerBound
	}
	if hi <= 0 {
		hi = DefaultUpperBound
	}
	return lo, hi
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Estimate runs the estimator on the cohort.
func Estimate(cohort *model.Cohort, cfg *Config, logger model.Logger) (*model.EstimateResult, error) {
	if len(cfg.Covariates) == 0 {
		return nil, &model.EstimationError{
			Estimator: model.EstimatorDoubleRobust,
			Reason:    "the double-robust estimator needs a covariate set",
		}
	}

	records := contrastSubset(cohort, cfg.Contrast)
	if err := checkLevels(records, cfg.Contrast); err != nil {
		return nil, err
	}

	design, err := glm.BuildDesign(records, &glm.DesignOptions{
		Treatment:  &cfg.Contrast,
		Covariates: cfg.Covariates,
	})
	if err != nil {
		return nil, wrapEstimation(err)
	}
	kept := make([]model.ChildRecord, 0, len(design.Kept))
	for _, idx := range design.Kept {
		kept = append(kept, records[idx])
	}
	if err := checkLevels(kept, cfg.Contrast); err != nil {
		return nil, err
	}
	if design.CountClusters() < 2 {
		return nil, &model.EstimationError{
			Estimator: model.EstimatorDoubleRobust,
			Reason:    "fewer than 2 randomization blocks",
		}
	}

	// The design's first column is the treatment indicator; the rest
	// is the covariate matrix W.
	numRows, numCols := design.X.Dims()
	a := make([]float64, numRows)
	w := mat.NewDense(numRows, numCols-1, nil)
	for row := 0; row < numRows; row++ {
		a[row] = design.X.At(row, 0)
		for col := 1; col < numCols; col++ {
			w.Set(row, col-1, design.X.At(row, col))
		}
	}
	y := design.Y

	super := &learner.SuperLearner{
		Learners: cfg.learners(),
		Folds:    cfg.Folds,
		Seed:     cfg.seed(),
		OnFold:   cfg.OnFold,
	}

	// Initial outcome regression Q(A,W) and its A=1 / A=0 predictions.
	outcomeEnsemble, err := super.Fit(design.X, y, glm.Gaussian)
	if err != nil {
		return nil, wrapEstimation(err)
	}
	logEnsemble(logger, "Q", outcomeEnsemble)
	qObserved := outcomeEnsemble.Predict(design.X)
	q1 := outcomeEnsemble.Predict(withTreatment(design.X, 1))
	q0 := outcomeEnsemble.Predict(withTreatment(design.X, 0))

	// Exposure model g(W), truncated away from 0 and 1.
	exposureEnsemble, err := super.Fit(w, a, glm.Binomial)
	if err != nil {
		return nil, wrapEstimation(err)
	}
	logEnsemble(logger, "g", exposureEnsemble)
	lo, hi := cfg.bounds()
	g := exposureEnsemble.Predict(w)
	for idx := range g {
		g[idx] = math.Min(hi, math.Max(lo, g[idx]))
	}

	// Targeting step: one-dimensional fluctuation along the clever
	// covariate H(A,W) = A/g - (1-A)/(1-g).
	h := make([]float64, numRows)
	var num, den float64
	for idx := range h {
		h[idx] = a[idx]/g[idx] - (1-a[idx])/(1-g[idx])
		num += h[idx] * (y[idx] - qObserved[idx])
		den += h[idx] * h[idx]
	}
	if den <= 0 {
		return nil, &model.EstimationError{
			Estimator: model.EstimatorDoubleRobust,
			Reason:    "degenerate clever covariate",
		}
	}
	epsilon := num / den

	psi := 0.0
	updated1 := make([]float64, numRows)
	updated0 := make([]float64, numRows)
	for idx := range updated1 {
		updated1[idx] = q1[idx] + epsilon/g[idx]
		updated0[idx] = q0[idx] - epsilon/(1-g[idx])
		psi += updated1[idx] - updated0[idx]
	}
	psi /= float64(numRows)

	// Efficient influence curve, aggregated at the block level.
	influence := make([]float64, numRows)
	for idx := range influence {
		updatedObserved := qObserved[idx] + epsilon*h[idx]
		influence[idx] = h[idx]*(y[idx]-updatedObserved) + updated1[idx] - updated0[idx] - psi
	}
	se, err := clusteredSE(influence, design.Clusters)
	if err != nil {
		return nil, err
	}

	critical := stdNormal.Quantile(0.975)
	result := &model.EstimateResult{
		Estimator: model.EstimatorDoubleRobust,
		Estimate:  psi,
		Lower:     psi - critical*se,
		Upper:     psi + critical*se,
		PValue:    2 * stdNormal.Survival(math.Abs(psi/se)),
	}
	if math.IsNaN(result.Estimate) || math.IsInf(result.Estimate, 0) {
		return nil, &model.EstimationError{
			Estimator: model.EstimatorDoubleRobust,
			Reason:    "non-finite point estimate",
		}
	}
	return result, nil
}

// contrastSubset keeps the records at either contrast level.
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

// checkLevels fails when either contrast level has no observations.
func checkLevels(records []model.ChildRecord, contrast model.Contrast) error {
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
			Estimator: model.EstimatorDoubleRobust,
			Reason: "contrast level with zero observations: " +
				string(contrast.Baseline) + " has " + strconv.Itoa(baseline) + ", " +
				string(contrast.Exposed) + " has " + strconv.Itoa(exposed),
		}
	}
	return nil
}

// clusteredSE averages the influence curve within each block and uses the
// variance of the block means over the number of blocks, which is the
// standard id-aggregated influence-curve variance.
func clusteredSE(influence []float64, clusters []string) (float64, error) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	var order []string
	for idx, cluster := range clusters {
		if _, seen := counts[cluster]; !seen {
			order = append(order, cluster)
		}
		sums[cluster] += influence[idx]
		counts[cluster]++
	}
	numClusters := len(order)
	if numClusters < 2 {
		return 0, &model.EstimationError{
			Estimator: model.EstimatorDoubleRobust,
			Reason:    "fewer than 2 randomization blocks",
		}
	}
	means := make([]float64, 0, numClusters)
	var total float64
	for _, cluster := range order {
		mean := sums[cluster] / float64(counts[cluster])
		means = append(means, mean)
		total += mean
	}
	grand := total / float64(numClusters)
	var ss float64
	for _, mean := range means {
		delta := mean - grand
		ss += delta * delta
	}
	variance := ss / float64(numClusters-1) / float64(numClusters)
	return math.Sqrt(variance), nil
}

// withTreatment copies the design with the treatment column forced to
// the given value.
func withTreatment(x *mat.Dense, value float64) *mat.Dense {
	numRows, numCols := x.Dims()
	out := mat.NewDense(numRows, numCols, nil)
	out.Copy(x)
	for row := 0; row < numRows; row++ {
		out.Set(row, 0, value)
	}
	return out
}

func wrapEstimation(err error) error {
	if _, ok := err.(*model.EstimationError); ok {
		return err
	}
	return &model.EstimationError{
		Estimator: model.EstimatorDoubleRobust,
		Reason:    err.Error(),
	}
}

func logEnsemble(logger model.Logger, which string, ensemble *learner.Ensemble) {
	for idx, name := range ensemble.Names {
		logger.Debugf("tmle: %s ensemble: %s weight %.4f", which, name, ensemble.Weights[idx])
	}
	for _, name := range ensemble.Dropped {
		logger.Warnf("tmle: %s ensemble: dropped learner %s", which, name)
	}
}
