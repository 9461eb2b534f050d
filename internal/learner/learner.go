// Package learner implements the candidate learners of the TMLE nuisance
// models and the cross-validated super learner that combines them.
//
// Each learner implements the same capability: fit a feature matrix and a
// response under a GLM family and hand back a predictor. The estimator
// never hardcodes the learner list; the country pipeline passes the fixed
// library declared in the tmle configuration, and each learner is unit
// testable on its own.
//
// Feature matrices here never carry an intercept column: every learner
// that wants one adds it internally.
package learner

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/glm"
	"gonum.org/v1/gonum/mat"
)

// Predictor predicts mean responses for new feature rows.
type Predictor interface {
	// Predict returns one mean response per row of x. For the binomial
	// family predictions are probabilities.
	Predict(x *mat.Dense) []float64
}

// Learner fits a predictor from features and a response.
type Learner interface {
	// Name returns the learner's stable display name.
	Name() string

	// Fit trains on the given features and response.
	Fit(x *mat.Dense, y []float64, family glm.Family) (Predictor, error)
}

// Library returns the fixed learner library used by both nuisance models:
// an intercept-only mean, a plain GLM, a weakly regularized (bayes-like)
// GLM, an additive natural-spline model, and an L1-regularized GLM.
func Library() []Learner {
	return []Learner{
		&Mean{},
		&GLM{},
		&Ridge{Lambda: 0.1},
		&GAM{DF: 4},
		&Lasso{},
	}
}

//
// Mean learner
//

// Mean is the intercept-only learner: it predicts the overall mean
// response (the overall proportion for the binomial family).
type Mean struct{}

var _ Learner = &Mean{}

// Name implements Learner.
func (*Mean) Name() string {
	return "mean"
}

// Fit implements Learner.
func (*Mean) Fit(x *mat.Dense, y []float64, family glm.Family) (Predictor, error) {
	if len(y) <= 0 {
		return nil, errors.New("learner: empty response")
	}
	var sum float64
	for _, value := range y {
		sum += value
	}
	return constantPredictor(sum / float64(len(y))), nil
}

type constantPredictor float64

// Predict implements Predictor.
func (p constantPredictor) Predict(x *mat.Dense) []float64 {
	numRows, _ := x.Dims()
	out := make([]float64, numRows)
	for idx := range out {
		out[idx] = float64(p)
	}
	return out
}

//
// GLM learner
//

// GLM is the unpenalized GLM learner.
type GLM struct{}

var _ Learner = &GLM{}

// Name implements Learner.
func (*GLM) Name() string {
	return "glm"
}

// Fit implements Learner.
func (*GLM) Fit(x *mat.Dense, y []float64, family glm.Family) (Predictor, error) {
	design := withIntercept(x)
	fit, err := glm.Fit(family, design, interceptNames(x), y)
	if err != nil {
		return nil, err
	}
	return &glmPredictor{fit: fit}, nil
}

type glmPredictor struct {
	fit *glm.FitResult
}

// Predict implements Predictor.
func (p *glmPredictor) Predict(x *mat.Dense) []float64 {
	return p.fit.Predict(withIntercept(x))
}

//
// shared helpers
//

// withIntercept returns x with a leading all-ones column.
func withIntercept(x *mat.Dense) *mat.Dense {
	numRows, numCols := x.Dims()
	out := mat.NewDense(numRows, numCols+1, nil)
	for row := 0; row < numRows; row++ {
		out.Set(row, 0, 1)
		for col := 0; col < numCols; col++ {
			out.Set(row, col+1, x.At(row, col))
		}
	}
	return out
}

func interceptNames(x *mat.Dense) []string {
	_, numCols := x.Dims()
	names := make([]string, 0, numCols+1)
	names = append(names, "(Intercept)")
	for idx := 0; idx < numCols; idx++ {
		names = append(names, "x"+strconv.Itoa(idx))
	}
	return names
}

// columnStats returns per-column means and standard deviations, with a
// zero SD mapped to 1 so standardization never divides by zero.
func columnStats(x *mat.Dense) (means, sds []float64) {
	numRows, numCols := x.Dims()
	means = make([]float64, numCols)
	sds = make([]float64, numCols)
	for col := 0; col < numCols; col++ {
		var sum float64
		for row := 0; row < numRows; row++ {
			sum += x.At(row, col)
		}
		mean := sum / float64(numRows)
		var ss float64
		for row := 0; row < numRows; row++ {
			delta := x.At(row, col) - mean
			ss += delta * delta
		}
		sd := math.Sqrt(ss / float64(numRows))
		if sd <= 0 {
			sd = 1
		}
		means[col] = mean
		sds[col] = sd
	}
	return
}

// standardize returns (x - mean) / sd column-wise.
func standardize(x *mat.Dense, means, sds []float64) *mat.Dense {
	numRows, numCols := x.Dims()
	out := mat.NewDense(numRows, numCols, nil)
	for row := 0; row < numRows; row++ {
		for col := 0; col < numCols; col++ {
			out.Set(row, col, (x.At(row, col)-means[col])/sds[col])
		}
	}
	return out
}
