// Package glm fits generalized linear models for the effect estimators.
//
// Two families are enough for this analysis: gaussian with identity link
// for the outcome models and binomial with logit link for the exposure
// model inside the TMLE. Fitting is iteratively reweighted least squares
// on a QR decomposition; the gaussian case converges in one pass.
//
// Inference always uses the cluster-robust sandwich variance with the
// randomization block as the clustering unit, because outcomes within a
// block are correlated and model-based standard errors would be
// anti-conservative.
package glm

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Family identifies the GLM family.
type Family int

const (
	// Gaussian is the identity-link gaussian family.
	Gaussian = Family(iota)

	// Binomial is the logit-link binomial family.
	Binomial
)

// String implements fmt.Stringer.
func (f Family) String() string {
	switch f {
	case Gaussian:
		return "gaussian"
	case Binomial:
		return "binomial"
	default:
		return "unknown"
	}
}

// irlsMaxIter bounds the IRLS iterations for the binomial family.
const irlsMaxIter = 50

// irlsTolerance is the relative deviance change that stops IRLS.
const irlsTolerance = 1e-10

// FitResult is a fitted GLM.
type FitResult struct {
	// Family is the fitted family.
	Family Family

	// Names labels the coefficients.
	Names []string

	// Coef contains the fitted coefficients.
	Coef []float64

	// Fitted contains the fitted means.
	Fitted []float64

	// LogLik is the maximized log likelihood.
	LogLik float64

	// NumObs is the number of observations.
	NumObs int

	x *mat.Dense
	y []float64
}

// Fit fits a GLM of y on the design matrix x. The design matrix must
// already contain an intercept column if one is wanted.
func Fit(family Family, x *mat.Dense, names []string, y []float64) (*FitResult, error) {
	numRows, numCols := x.Dims()
	if numRows != len(y) {
		return nil, errors.Errorf("glm: design has %d rows, response has %d", numRows, len(y))
	}
	if numRows < numCols {
		return nil, errors.Errorf("glm: %d observations for %d coefficients", numRows, numCols)
	}

	coef := make([]float64, numCols)
	switch family {
	case Gaussian:
		if err := wlsSolve(x, y, nil, coef); err != nil {
			return nil, err
		}
	case Binomial:
		if err := irlsBinomial(x, y, coef); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("glm: unknown family %d", family)
	}

	fitted := make([]float64, numRows)
	linearPredictor(x, coef, fitted)
	if family == Binomial {
		for idx, eta := range fitted {
			fitted[idx] = logistic(eta)
		}
	}

	result := &FitResult{
		Family: family,
		Names:  append([]string{}, names...),
		Coef:   coef,
		Fitted: fitted,
		NumObs: numRows,
		x:      x,
		y:      append([]float64{}, y...),
	}
	result.LogLik = result.logLik()
	return result, nil
}

// Predict evaluates the fitted model on new rows, returning means.
func (fr *FitResult) Predict(x mat.Matrix) []float64 {
	numRows, _ := x.Dims()
	out := make([]float64, numRows)
	coefVec := mat.NewVecDense(len(fr.Coef), fr.Coef)
	var eta mat.VecDense
	eta.MulVec(x, coefVec)
	for idx := 0; idx < numRows; idx++ {
		out[idx] = eta.AtVec(idx)
		if fr.Family == Binomial {
			out[idx] = logistic(out[idx])
		}
	}
	return out
}

// Residuals returns the response residuals.
func (fr *FitResult) Residuals() []float64 {
	out := make([]float64, fr.NumObs)
	for idx := range out {
		out[idx] = fr.y[idx] - fr.Fitted[idx]
	}
	return out
}

// logLik computes the maximized log likelihood. For the gaussian family
// the variance is profiled out at its MLE, which is what the
// likelihood-ratio screening needs to compare nested fits.
func (fr *FitResult) logLik() float64 {
	n := float64(fr.NumObs)
	switch fr.Family {
	case Gaussian:
		var rss float64
		for idx := range fr.y {
			resid := fr.y[idx] - fr.Fitted[idx]
			rss += resid * resid
		}
		if rss <= 0 {
			rss = math.SmallestNonzeroFloat64
		}
		return -n / 2 * (math.Log(2*math.Pi*rss/n) + 1)
	case Binomial:
		var ll float64
		for idx := range fr.y {
			mu := clampProbability(fr.Fitted[idx])
			ll += fr.y[idx]*math.Log(mu) + (1-fr.y[idx])*math.Log(1-mu)
		}
		return ll
	default:
		return math.NaN()
	}
}

// WLS solves the (possibly weighted) least squares problem, returning the
// coefficient vector. A nil weights slice means unit weights. The ensemble
// learners use this to share one QR path with the GLM fitter.
func WLS(x *mat.Dense, y []float64, weights []float64) ([]float64, error) {
	_, numCols := x.Dims()
	coef := make([]float64, numCols)
	if err := wlsSolve(x, y, weights, coef); err != nil {
		return nil, err
	}
	return coef, nil
}

// wlsSolve solves the (possibly weighted) least squares problem and
// stores the solution into coef. A nil weights slice means unit weights.
func wlsSolve(x *mat.Dense, y []float64, weights []float64, coef []float64) error {
	numRows, numCols := x.Dims()
	design := x
	response := mat.NewVecDense(numRows, append([]float64{}, y...))
	if weights != nil {
		scaled := mat.NewDense(numRows, numCols, nil)
		for row := 0; row < numRows; row++ {
			w := math.Sqrt(weights[row])
			for col := 0; col < numCols; col++ {
				scaled.Set(row, col, w*x.At(row, col))
			}
			response.SetVec(row, w*y[row])
		}
		design = scaled
	}
	var qr mat.QR
	qr.Factorize(design)
	var solution mat.VecDense
	if err := qr.SolveVecTo(&solution, false, response); err != nil {
		return errors.Wrap(err, "glm: singular design matrix")
	}
	for idx := 0; idx < numCols; idx++ {
		coef[idx] = solution.AtVec(idx)
	}
	return nil
}

// irlsBinomial runs IRLS for the logit-link binomial family.
func irlsBinomial(x *mat.Dense, y []float64, coef []float64) error {
	numRows, _ := x.Dims()
	eta := make([]float64, numRows)
	work := make([]float64, numRows)
	weights := make([]float64, numRows)
	previous := math.Inf(1)
	for iter := 0; iter < irlsMaxIter; iter++ {
		linearPredictor(x, coef, eta)
		var deviance float64
		for idx := 0; idx < numRows; idx++ {
			mu := clampProbability(logistic(eta[idx]))
			w := mu * (1 - mu)
			weights[idx] = w
			work[idx] = eta[idx] + (y[idx]-mu)/w
			deviance -= 2 * (y[idx]*math.Log(mu) + (1-y[idx])*math.Log(1-mu))
		}
		if err := wlsSolve(x, work, weights, coef); err != nil {
			return err
		}
		if math.Abs(deviance-previous) < irlsTolerance*(math.Abs(deviance)+0.1) {
			return nil
		}
		previous = deviance
	}
	// Reaching the iteration cap is fine for a nuisance model: the
	// coefficients are already stable to well below inferential noise.
	return nil
}

func linearPredictor(x *mat.Dense, coef []float64, out []float64) {
	numRows, numCols := x.Dims()
	for row := 0; row < numRows; row++ {
		var eta float64
		for col := 0; col < numCols; col++ {
			eta += x.At(row, col) * coef[col]
		}
		out[row] = eta
	}
}

func logistic(eta float64) float64 {
	return 1 / (1 + math.Exp(-eta))
}

// clampProbability keeps fitted probabilities away from 0 and 1 so the
// IRLS weights and the log likelihood stay finite.
func clampProbability(p float64) float64 {
	const eps = 1e-10
	return math.Min(1-eps, math.Max(eps, p))
}
