package learner

import (
	"math"

	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/glm"
	"gonum.org/v1/gonum/mat"
)

// Ridge is the weakly regularized GLM learner, the analog of a bayesian
// GLM with a gaussian coefficient prior. Features are standardized
// internally and the intercept is never penalized.
type Ridge struct {
	// Lambda is the L2 penalty on the standardized scale.
	Lambda float64
}

var _ Learner = &Ridge{}

// Name implements Learner.
func (*Ridge) Name() string {
	return "ridge"
}

// Fit implements Learner.
func (r *Ridge) Fit(x *mat.Dense, y []float64, family glm.Family) (Predictor, error) {
	numRows, numCols := x.Dims()
	if numRows != len(y) {
		return nil, errors.Errorf("learner: ridge: %d rows vs %d responses", numRows, len(y))
	}
	means, sds := columnStats(x)
	features := standardize(x, means, sds)

	coef := make([]float64, numCols+1)
	switch family {
	case glm.Gaussian:
		solved, err := glm.WLS(r.augment(features), r.augmentResponse(y, numCols), nil)
		if err != nil {
			return nil, err
		}
		copy(coef, solved)
	case glm.Binomial:
		if err := r.irls(features, y, coef); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("learner: ridge: unknown family %v", family)
	}
	return &ridgePredictor{family: family, coef: coef, means: means, sds: sds}, nil
}

// augment appends sqrt(lambda) identity rows for the penalized columns,
// turning the penalized problem into an ordinary least squares one. The
// intercept column gets a zero row so it stays unpenalized.
func (r *Ridge) augment(features *mat.Dense) *mat.Dense {
	numRows, numCols := features.Dims()
	out := mat.NewDense(numRows+numCols, numCols+1, nil)
	for row := 0; row < numRows; row++ {
		out.Set(row, 0, 1)
		for col := 0; col < numCols; col++ {
			out.Set(row, col+1, features.At(row, col))
		}
	}
	penalty := math.Sqrt(r.Lambda)
	for col := 0; col < numCols; col++ {
		out.Set(numRows+col, col+1, penalty)
	}
	return out
}

func (r *Ridge) augmentResponse(y []float64, numCols int) []float64 {
	out := make([]float64, len(y)+numCols)
	copy(out, y)
	return out
}

// irls runs penalized IRLS for the binomial family. Each iteration solves
// the ridge-augmented weighted least squares problem at the current
// working response; the penalty rows carry unit weight.
func (r *Ridge) irls(features *mat.Dense, y []float64, coef []float64) error {
	numRows, numCols := features.Dims()
	design := r.augment(features)
	work := make([]float64, numRows+numCols)
	weights := make([]float64, numRows+numCols)
	for idx := range weights {
		weights[idx] = 1
	}
	for iter := 0; iter < 25; iter++ {
		var maxDelta float64
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
		solved, err := glm.WLS(design, work, weights)
		if err != nil {
			return err
		}
		for idx := range coef {
			maxDelta = math.Max(maxDelta, math.Abs(solved[idx]-coef[idx]))
			coef[idx] = solved[idx]
		}
		if maxDelta < 1e-8 {
			break
		}
	}
	return nil
}

type ridgePredictor struct {
	family glm.Family
	coef   []float64
	means  []float64
	sds    []float64
}

// Predict implements Predictor.
func (p *ridgePredictor) Predict(x *mat.Dense) []float64 {
	numRows, numCols := x.Dims()
	out := make([]float64, numRows)
	for row := 0; row < numRows; row++ {
		eta := p.coef[0]
		for col := 0; col < numCols; col++ {
			eta += (x.At(row, col) - p.means[col]) / p.sds[col] * p.coef[col+1]
		}
		if p.family == glm.Binomial {
			eta = 1 / (1 + math.Exp(-eta))
		}
		out[row] = eta
	}
	return out
}
