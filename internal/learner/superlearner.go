package learner

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/glm"
	"gonum.org/v1/gonum/mat"
)

// SuperLearner combines the candidate learners by V-fold cross-validated
// ensembling: each learner's out-of-fold predictions form the level-one
// design, non-negative least squares assigns the convex weights, and the
// weighted learners are refit on the full data.
//
// The fold assignment is the only randomness in the whole analysis. It is
// driven exclusively by Seed, so a fixed seed makes every downstream
// number bit-reproducible.
type SuperLearner struct {
	// Learners is the candidate library.
	Learners []Learner

	// Folds is the number of CV folds.
	Folds int

	// Seed seeds the fold shuffling.
	Seed int64

	// OnFold, when not nil, is invoked after each completed fold.
	OnFold func(fold, total int)
}

// Ensemble is a fitted SuperLearner.
type Ensemble struct {
	// Names lists the learner names, aligned with Weights.
	Names []string

	// Weights are the convex ensemble weights; they sum to 1 and a
	// dropped learner has weight 0.
	Weights []float64

	// Dropped lists learners excluded because they failed on some fold.
	Dropped []string

	predictors []Predictor
	family     glm.Family
}

// Fit trains the ensemble.
func (sl *SuperLearner) Fit(x *mat.Dense, y []float64, family glm.Family) (*Ensemble, error) {
	numRows, numCols := x.Dims()
	if numRows != len(y) {
		return nil, errors.Errorf("learner: superlearner: %d rows vs %d responses", numRows, len(y))
	}
	if len(sl.Learners) == 0 {
		return nil, errors.New("learner: superlearner: empty library")
	}
	folds := sl.Folds
	if folds <= 1 {
		folds = 10
	}
	if folds > numRows {
		folds = numRows
	}

	assignment := sl.foldAssignment(numRows, folds)
	numLearners := len(sl.Learners)
	levelOne := mat.NewDense(numRows, numLearners, nil)
	failed := make([]bool, numLearners)

	for fold := 0; fold < folds; fold++ {
		var trainRows, testRows []int
		for row := 0; row < numRows; row++ {
			if assignment[row] == fold {
				testRows = append(testRows, row)
			} else {
				trainRows = append(trainRows, row)
			}
		}
		trainX := subsetMatrix(x, trainRows, numCols)
		trainY := subsetSlice(y, trainRows)
		testX := subsetMatrix(x, testRows, numCols)
		for li, candidate := range sl.Learners {
			if failed[li] {
				continue
			}
			predictor, err := candidate.Fit(trainX, trainY, family)
			if err != nil {
				failed[li] = true
				continue
			}
			predictions := predictor.Predict(testX)
			for ti, row := range testRows {
				levelOne.Set(row, li, predictions[ti])
			}
		}
		if sl.OnFold != nil {
			sl.OnFold(fold+1, folds)
		}
	}

	usable := make([]int, 0, numLearners)
	var dropped []string
	for li := range sl.Learners {
		if failed[li] {
			dropped = append(dropped, sl.Learners[li].Name())
			continue
		}
		usable = append(usable, li)
	}
	if len(usable) == 0 {
		return nil, errors.New("learner: superlearner: every learner failed")
	}

	weights := sl.solveWeights(levelOne, y, usable)

	ensemble := &Ensemble{
		Names:   make([]string, numLearners),
		Weights: weights,
		Dropped: dropped,
		family:  family,
	}
	ensemble.predictors = make([]Predictor, numLearners)
	for li, candidate := range sl.Learners {
		ensemble.Names[li] = candidate.Name()
		if weights[li] <= 0 {
			continue
		}
		predictor, err := candidate.Fit(x, y, family)
		if err != nil {
			return nil, errors.Wrapf(err, "learner: superlearner: full-data refit of %s", candidate.Name())
		}
		ensemble.predictors[li] = predictor
	}
	return ensemble, nil
}

// foldAssignment shuffles row indices with the configured seed and deals
// them into folds as evenly as possible.
func (sl *SuperLearner) foldAssignment(numRows, folds int) []int {
	rng := rand.New(rand.NewSource(sl.Seed))
	permutation := rng.Perm(numRows)
	assignment := make([]int, numRows)
	for position, row := range permutation {
		assignment[row] = position % folds
	}
	return assignment
}

// solveWeights computes NNLS weights over the usable learners on the
// level-one predictions and normalizes them to sum 1. If NNLS degenerates
// to all-zero weights, the single learner with the lowest CV risk gets
// weight 1 (the discrete super learner).
func (sl *SuperLearner) solveWeights(levelOne *mat.Dense, y []float64, usable []int) []float64 {
	numRows, numLearners := levelOne.Dims()
	z := subsetColumns(levelOne, usable)
	solution := nnls(z, y)

	weights := make([]float64, numLearners)
	var total float64
	for pos, li := range usable {
		weights[li] = solution[pos]
		total += solution[pos]
	}
	if total <= 0 {
		best, bestRisk := usable[0], math.Inf(1)
		for _, li := range usable {
			var sse float64
			for row := 0; row < numRows; row++ {
				delta := y[row] - levelOne.At(row, li)
				sse += delta * delta
			}
			if sse < bestRisk {
				bestRisk = sse
				best = li
			}
		}
		weights[best] = 1
		return weights
	}
	for li := range weights {
		weights[li] /= total
	}
	return weights
}

// Predict implements Predictor.
func (e *Ensemble) Predict(x *mat.Dense) []float64 {
	numRows, _ := x.Dims()
	out := make([]float64, numRows)
	for li, predictor := range e.predictors {
		if predictor == nil || e.Weights[li] <= 0 {
			continue
		}
		predictions := predictor.Predict(x)
		for row := range out {
			out[row] += e.Weights[li] * predictions[row]
		}
	}
	if e.family == glm.Binomial {
		for row := range out {
			out[row] = math.Min(1-1e-6, math.Max(1e-6, out[row]))
		}
	}
	return out
}

func subsetColumns(src *mat.Dense, cols []int) *mat.Dense {
	numRows, _ := src.Dims()
	out := mat.NewDense(numRows, len(cols), nil)
	for row := 0; row < numRows; row++ {
		for pos, col := range cols {
			out.Set(row, pos, src.At(row, col))
		}
	}
	return out
}
