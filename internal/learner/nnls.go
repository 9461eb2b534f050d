package learner

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// nnls solves min ||a w - y|| subject to w >= 0 with the Lawson-Hanson
// active-set algorithm. The returned vector may be all zeros when no
// column has positive correlation with the response.
func nnls(a *mat.Dense, y []float64) []float64 {
	numRows, numCols := a.Dims()
	weights := make([]float64, numCols)
	passive := make([]bool, numCols)
	residual := append([]float64{}, y...)

	const maxIterations = 200
	for iteration := 0; iteration < maxIterations; iteration++ {
		// Most negative gradient among the active (zero) coordinates.
		best, bestGradient := -1, 0.0
		for col := 0; col < numCols; col++ {
			if passive[col] {
				continue
			}
			var gradient float64
			for row := 0; row < numRows; row++ {
				gradient += a.At(row, col) * residual[row]
			}
			if gradient > bestGradient+1e-12 {
				bestGradient = gradient
				best = col
			}
		}
		if best < 0 {
			break
		}
		passive[best] = true

		// Inner loop: solve the unconstrained problem on the passive
		// set and clip coordinates that went negative.
		for {
			solution, ok := passiveSolve(a, y, passive)
			if !ok {
				passive[best] = false
				return weights
			}
			var worst float64 = 1
			for col, value := range solution {
				if passive[col] && value <= 0 {
					// Step length toward feasibility.
					alpha := weights[col] / (weights[col] - value)
					worst = math.Min(worst, alpha)
				}
			}
			if worst >= 1 {
				copy(weights, solution)
				break
			}
			for col := 0; col < numCols; col++ {
				if !passive[col] {
					continue
				}
				weights[col] += worst * (solution[col] - weights[col])
				if weights[col] <= 1e-12 {
					weights[col] = 0
					passive[col] = false
				}
			}
		}

		for row := 0; row < numRows; row++ {
			var fitted float64
			for col := 0; col < numCols; col++ {
				fitted += a.At(row, col) * weights[col]
			}
			residual[row] = y[row] - fitted
		}
	}
	return weights
}

// passiveSolve solves the least squares problem restricted to the passive
// columns, returning a full-width solution vector with zeros elsewhere.
func passiveSolve(a *mat.Dense, y []float64, passive []bool) ([]float64, bool) {
	numRows, numCols := a.Dims()
	var cols []int
	for col := 0; col < numCols; col++ {
		if passive[col] {
			cols = append(cols, col)
		}
	}
	sub := mat.NewDense(numRows, len(cols), nil)
	for row := 0; row < numRows; row++ {
		for pos, col := range cols {
			sub.Set(row, pos, a.At(row, col))
		}
	}
	var qr mat.QR
	qr.Factorize(sub)
	var solution mat.VecDense
	if err := qr.SolveVecTo(&solution, false, mat.NewVecDense(numRows, append([]float64{}, y...))); err != nil {
		return nil, false
	}
	out := make([]float64, numCols)
	for pos, col := range cols {
		out[col] = solution.AtVec(pos)
	}
	return out, true
}
