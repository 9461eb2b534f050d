package learner

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/glm"
	"gonum.org/v1/gonum/mat"
)

// GAM is the smooth additive learner: every feature with enough distinct
// values is expanded into a natural cubic spline basis with DF degrees of
// freedom (knots at quantiles) and the expanded design is fit as a GLM.
// Features with few distinct values (dummies, small counts) pass through
// linearly.
type GAM struct {
	// DF is the degrees of freedom per smoothed feature; zero means 4.
	DF int
}

var _ Learner = &GAM{}

// Name implements Learner.
func (*GAM) Name() string {
	return "gam"
}

// Fit implements Learner.
func (g *GAM) Fit(x *mat.Dense, y []float64, family glm.Family) (Predictor, error) {
	numRows, numCols := x.Dims()
	if numRows != len(y) {
		return nil, errors.Errorf("learner: gam: %d rows vs %d responses", numRows, len(y))
	}
	df := g.DF
	if df <= 0 {
		df = 4
	}

	bases := make([]*splineBasis, numCols)
	for col := 0; col < numCols; col++ {
		column := make([]float64, numRows)
		for row := 0; row < numRows; row++ {
			column[row] = x.At(row, col)
		}
		bases[col] = newSplineBasis(column, df)
	}

	expanded := expandSplines(x, bases)
	design := withIntercept(expanded)
	fit, err := glm.Fit(family, design, interceptNames(expanded), y)
	if err != nil {
		return nil, err
	}
	return &gamPredictor{fit: fit, bases: bases}, nil
}

type gamPredictor struct {
	fit   *glm.FitResult
	bases []*splineBasis
}

// Predict implements Predictor.
func (p *gamPredictor) Predict(x *mat.Dense) []float64 {
	return p.fit.Predict(withIntercept(expandSplines(x, p.bases)))
}

func expandSplines(x *mat.Dense, bases []*splineBasis) *mat.Dense {
	numRows, numCols := x.Dims()
	width := 0
	for _, basis := range bases {
		width += basis.width()
	}
	out := mat.NewDense(numRows, width, nil)
	for row := 0; row < numRows; row++ {
		offset := 0
		for col := 0; col < numCols; col++ {
			offset += bases[col].evaluate(x.At(row, col), out, row, offset)
		}
	}
	return out
}

// splineBasis is a natural cubic spline basis with knots frozen at the
// training quantiles, so prediction uses the same expansion as fitting.
// A nil knot slice means the feature passes through linearly.
type splineBasis struct {
	knots []float64
}

// newSplineBasis places df+1 knots at evenly spaced quantiles. Features
// with at most df+1 distinct values stay linear: a spline there would be
// rank deficient.
func newSplineBasis(column []float64, df int) *splineBasis {
	distinct := distinctCount(column)
	if distinct <= df+1 {
		return &splineBasis{}
	}
	sorted := append([]float64{}, column...)
	sort.Float64s(sorted)
	numKnots := df + 1
	knots := make([]float64, 0, numKnots)
	for idx := 0; idx < numKnots; idx++ {
		q := float64(idx) / float64(numKnots-1)
		pos := q * float64(len(sorted)-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		frac := pos - float64(lo)
		knots = append(knots, sorted[lo]*(1-frac)+sorted[hi]*frac)
	}
	// Collapsed knots (heavily tied data) degrade to a linear term.
	for idx := 1; idx < len(knots); idx++ {
		if knots[idx] <= knots[idx-1] {
			return &splineBasis{}
		}
	}
	return &splineBasis{knots: knots}
}

// width returns the number of columns this basis produces.
func (b *splineBasis) width() int {
	if len(b.knots) == 0 {
		return 1
	}
	return len(b.knots) - 1
}

// evaluate writes the basis functions of value into out[row, offset...]
// and returns the number of columns written. The basis is the standard
// natural cubic spline construction: a linear term plus K-2 cubic terms
// constrained to linearity beyond the boundary knots.
func (b *splineBasis) evaluate(value float64, out *mat.Dense, row, offset int) int {
	if len(b.knots) == 0 {
		out.Set(row, offset, value)
		return 1
	}
	knots := b.knots
	k := len(knots)
	out.Set(row, offset, value)
	dLast := b.truncatedCubic(value, k-2)
	for idx := 0; idx < k-2; idx++ {
		out.Set(row, offset+1+idx, b.truncatedCubic(value, idx)-dLast)
	}
	return k - 1
}

// truncatedCubic computes d_idx(value) for the natural spline basis.
func (b *splineBasis) truncatedCubic(value float64, idx int) float64 {
	knots := b.knots
	last := knots[len(knots)-1]
	num := positiveCube(value-knots[idx]) - positiveCube(value-last)
	return num / (last - knots[idx])
}

func positiveCube(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v * v * v
}

func distinctCount(column []float64) int {
	seen := make(map[float64]bool, len(column))
	for _, value := range column {
		seen[value] = true
	}
	return len(seen)
}
