package learner

import (
	"math"

	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/glm"
	"gonum.org/v1/gonum/mat"
)

// Lasso is the L1-regularized GLM learner, fit by coordinate descent on
// standardized features. The penalty is chosen on a fixed log-spaced
// lambda path by an internal cross-validation whose folds are assigned by
// row stride, so the whole fit is deterministic without a seed of its own.
type Lasso struct {
	// PathLength is the number of lambda values on the path;
	// zero means the default of 30.
	PathLength int

	// InnerFolds is the number of internal CV folds; zero means 5.
	InnerFolds int
}

var _ Learner = &Lasso{}

// Name implements Learner.
func (*Lasso) Name() string {
	return "lasso"
}

// lassoMinRatio is the smallest path lambda as a fraction of lambda_max.
const lassoMinRatio = 1e-3

// Fit implements Learner.
func (l *Lasso) Fit(x *mat.Dense, y []float64, family glm.Family) (Predictor, error) {
	numRows, _ := x.Dims()
	if numRows != len(y) {
		return nil, errors.Errorf("learner: lasso: %d rows vs %d responses", numRows, len(y))
	}
	if family != glm.Gaussian && family != glm.Binomial {
		return nil, errors.Errorf("learner: lasso: unknown family %v", family)
	}
	means, sds := columnStats(x)
	features := standardize(x, means, sds)
	path := l.lambdaPath(features, y)
	folds := l.InnerFolds
	if folds <= 0 {
		folds = 5
	}
	if folds > numRows {
		folds = numRows
	}

	// Pick lambda by stride-fold CV on squared error. Squared error is
	// also a proper score for the binomial probabilities here.
	best, bestRisk := path[0], math.Inf(1)
	for _, lambda := range path {
		var sse float64
		var count int
		for fold := 0; fold < folds; fold++ {
			trainX, trainY, testX, testY := strideSplit(features, y, fold, folds)
			if len(trainY) == 0 || len(testY) == 0 {
				continue
			}
			coef := coordinateDescent(trainX, trainY, family, lambda)
			predictions := linearPredict(testX, coef, family)
			for idx := range testY {
				delta := testY[idx] - predictions[idx]
				sse += delta * delta
			}
			count += len(testY)
		}
		if count == 0 {
			continue
		}
		risk := sse / float64(count)
		if risk < bestRisk {
			bestRisk = risk
			best = lambda
		}
	}

	coef := coordinateDescent(features, y, family, best)
	return &lassoPredictor{family: family, coef: coef, means: means, sds: sds}, nil
}

// lambdaPath returns the log-spaced penalty path from lambda_max, the
// smallest penalty that zeroes every coefficient.
func (l *Lasso) lambdaPath(features *mat.Dense, y []float64) []float64 {
	numRows, numCols := features.Dims()
	var mean float64
	for _, value := range y {
		mean += value
	}
	mean /= float64(numRows)
	var lambdaMax float64
	for col := 0; col < numCols; col++ {
		var dot float64
		for row := 0; row < numRows; row++ {
			dot += features.At(row, col) * (y[row] - mean)
		}
		lambdaMax = math.Max(lambdaMax, math.Abs(dot)/float64(numRows))
	}
	if lambdaMax <= 0 {
		lambdaMax = 1e-3
	}
	length := l.PathLength
	if length <= 0 {
		length = 30
	}
	path := make([]float64, 0, length)
	logMax := math.Log(lambdaMax)
	logMin := math.Log(lambdaMax * lassoMinRatio)
	for idx := 0; idx < length; idx++ {
		frac := float64(idx) / float64(length-1)
		path = append(path, math.Exp(logMax+(logMin-logMax)*frac))
	}
	return path
}

// coordinateDescent minimizes the penalized (working) least squares
// objective. For the binomial family it wraps the descent in an IRLS
// quadratic approximation loop.
func coordinateDescent(features *mat.Dense, y []float64, family glm.Family, lambda float64) []float64 {
	numRows, numCols := features.Dims()
	coef := make([]float64, numCols+1)
	if family == glm.Gaussian {
		weights := make([]float64, numRows)
		for idx := range weights {
			weights[idx] = 1
		}
		weightedDescent(features, y, weights, lambda, coef)
		return coef
	}
	work := make([]float64, numRows)
	weights := make([]float64, numRows)
	for iter := 0; iter < 10; iter++ {
		previous := append([]float64{}, coef...)
		for row := 0; row < numRows; row++ {
			eta := coef[0]
			for col := 0; col < numCols; col++ {
				eta += features.At(row, col) * coef[col+1]
			}
			mu := 1 / (1 + math.Exp(-eta))
			mu = math.Min(1-1e-10, math.Max(1e-10, mu))
			w := mu * (1 - mu)
			weights[row] = w
			work[row] = eta + (y[row]-mu)/w
		}
		weightedDescent(features, work, weights, lambda, coef)
		var maxDelta float64
		for idx := range coef {
			maxDelta = math.Max(maxDelta, math.Abs(coef[idx]-previous[idx]))
		}
		if maxDelta < 1e-7 {
			break
		}
	}
	return coef
}

// weightedDescent runs cyclic coordinate descent on the weighted
// objective (1/2n) sum w_i (y_i - b0 - x_i b)^2 + lambda * |b|_1,
// updating coef in place. coef[0] is the unpenalized intercept.
func weightedDescent(features *mat.Dense, y []float64, weights []float64, lambda float64, coef []float64) {
	numRows, numCols := features.Dims()
	n := float64(numRows)
	residual := make([]float64, numRows)
	for row := 0; row < numRows; row++ {
		pred := coef[0]
		for col := 0; col < numCols; col++ {
			pred += features.At(row, col) * coef[col+1]
		}
		residual[row] = y[row] - pred
	}
	for iter := 0; iter < 200; iter++ {
		var maxDelta float64

		// Intercept: weighted mean of the residual plus the current value.
		var wsum, wres float64
		for row := 0; row < numRows; row++ {
			wsum += weights[row]
			wres += weights[row] * residual[row]
		}
		interceptDelta := wres / wsum
		coef[0] += interceptDelta
		for row := 0; row < numRows; row++ {
			residual[row] -= interceptDelta
		}
		maxDelta = math.Abs(interceptDelta)

		for col := 0; col < numCols; col++ {
			var rho, nu float64
			for row := 0; row < numRows; row++ {
				xij := features.At(row, col)
				rho += weights[row] * xij * (residual[row] + xij*coef[col+1])
				nu += weights[row] * xij * xij
			}
			rho /= n
			nu /= n
			if nu <= 0 {
				continue
			}
			updated := softThreshold(rho, lambda) / nu
			delta := updated - coef[col+1]
			if delta != 0 {
				for row := 0; row < numRows; row++ {
					residual[row] -= features.At(row, col) * delta
				}
				coef[col+1] = updated
			}
			maxDelta = math.Max(maxDelta, math.Abs(delta))
		}
		if maxDelta < 1e-7 {
			break
		}
	}
}

func softThreshold(value, threshold float64) float64 {
	switch {
	case value > threshold:
		return value - threshold
	case value < -threshold:
		return value + threshold
	default:
		return 0
	}
}

// strideSplit partitions rows into train and test by fold stride.
func strideSplit(features *mat.Dense, y []float64, fold, folds int) (*mat.Dense, []float64, *mat.Dense, []float64) {
	numRows, numCols := features.Dims()
	var trainRows, testRows []int
	for row := 0; row < numRows; row++ {
		if row%folds == fold {
			testRows = append(testRows, row)
		} else {
			trainRows = append(trainRows, row)
		}
	}
	return subsetMatrix(features, trainRows, numCols), subsetSlice(y, trainRows),
		subsetMatrix(features, testRows, numCols), subsetSlice(y, testRows)
}

func subsetMatrix(src *mat.Dense, rows []int, numCols int) *mat.Dense {
	if len(rows) == 0 {
		return mat.NewDense(1, numCols, nil)
	}
	out := mat.NewDense(len(rows), numCols, nil)
	for outRow, srcRow := range rows {
		for col := 0; col < numCols; col++ {
			out.Set(outRow, col, src.At(srcRow, col))
		}
	}
	return out
}

func subsetSlice(src []float64, rows []int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		out = append(out, src[row])
	}
	return out
}

func linearPredict(features *mat.Dense, coef []float64, family glm.Family) []float64 {
	numRows, numCols := features.Dims()
	out := make([]float64, numRows)
	for row := 0; row < numRows; row++ {
		eta := coef[0]
		for col := 0; col < numCols; col++ {
			eta += features.At(row, col) * coef[col+1]
		}
		if family == glm.Binomial {
			eta = 1 / (1 + math.Exp(-eta))
		}
		out[row] = eta
	}
	return out
}

type lassoPredictor struct {
	family glm.Family
	coef   []float64
	means  []float64
	sds    []float64
}

// Predict implements Predictor.
func (p *lassoPredictor) Predict(x *mat.Dense) []float64 {
	features := standardize(x, p.means, p.sds)
	return linearPredict(features, p.coef, p.family)
}
