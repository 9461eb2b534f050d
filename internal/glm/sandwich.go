package glm

import (
	"math"

	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/model"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// CoefficientInference is the cluster-robust inference for one coefficient.
type CoefficientInference struct {
	// Name is the coefficient name.
	Name string

	// Estimate is the coefficient value.
	Estimate float64

	// SE is the cluster-robust standard error.
	SE float64

	// Lower and Upper are the two-sided 95% confidence bounds.
	Lower float64
	Upper float64

	// PValue is the two-sided p-value from the robust z statistic.
	PValue float64
}

// stdNormal is the reference distribution for robust z statistics.
var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// critical95 is the two-sided 95% normal quantile.
var critical95 = stdNormal.Quantile(0.975)

// ClusterRobust computes sandwich standard errors treating rows that
// share a cluster label as arbitrarily correlated. The bread is the
// inverse weighted information; the meat sums the outer products of the
// within-cluster score sums; a G/(G-1) factor corrects for the finite
// number of clusters. Fewer than two clusters is an estimation failure
// because the meat would be degenerate.
func (fr *FitResult) ClusterRobust(clusters []string) ([]CoefficientInference, error) {
	numRows, numCols := fr.x.Dims()
	if len(clusters) != numRows {
		return nil, errors.Errorf("glm: %d cluster labels for %d rows", len(clusters), numRows)
	}

	groups := make(map[string][]int)
	order := make([]string, 0)
	for row, cluster := range clusters {
		if _, seen := groups[cluster]; !seen {
			order = append(order, cluster)
		}
		groups[cluster] = append(groups[cluster], row)
	}
	numClusters := len(groups)
	if numClusters < 2 {
		return nil, &model.EstimationError{
			Estimator: "sandwich",
			Reason:    "cluster-robust variance needs at least 2 clusters",
		}
	}

	// Information: X' W X with the family's IRLS weights.
	weights := fr.irlsWeights()
	info := mat.NewDense(numCols, numCols, nil)
	for row := 0; row < numRows; row++ {
		for a := 0; a < numCols; a++ {
			for b := 0; b < numCols; b++ {
				info.Set(a, b, info.At(a, b)+weights[row]*fr.x.At(row, a)*fr.x.At(row, b))
			}
		}
	}
	var bread mat.Dense
	if err := bread.Inverse(info); err != nil {
		return nil, errors.Wrap(err, "glm: singular information matrix")
	}

	// Meat: per-cluster score sums. The score of row i is x_i (y_i - mu_i)
	// for both families, since both use the canonical link.
	meat := mat.NewDense(numCols, numCols, nil)
	score := make([]float64, numCols)
	for _, cluster := range order {
		for idx := range score {
			score[idx] = 0
		}
		for _, row := range groups[cluster] {
			resid := fr.y[row] - fr.Fitted[row]
			for col := 0; col < numCols; col++ {
				score[col] += fr.x.At(row, col) * resid
			}
		}
		for a := 0; a < numCols; a++ {
			for b := 0; b < numCols; b++ {
				meat.Set(a, b, meat.At(a, b)+score[a]*score[b])
			}
		}
	}

	correction := float64(numClusters) / float64(numClusters-1)
	var sandwich mat.Dense
	sandwich.Mul(&bread, meat)
	sandwich.Mul(&sandwich, &bread)
	sandwich.Scale(correction, &sandwich)

	out := make([]CoefficientInference, 0, numCols)
	for col := 0; col < numCols; col++ {
		variance := sandwich.At(col, col)
		// Rounding in the matrix products can leave a tiny negative
		// diagonal where the true variance is zero.
		if variance < 0 && variance > -1e-12 {
			variance = 0
		}
		if variance < 0 || math.IsNaN(variance) {
			return nil, &model.EstimationError{
				Estimator: "sandwich",
				Reason:    "negative robust variance for " + fr.Names[col],
			}
		}
		se := math.Sqrt(variance)
		est := fr.Coef[col]
		entry := CoefficientInference{
			Name:     fr.Names[col],
			Estimate: est,
			SE:       se,
			Lower:    est - critical95*se,
			Upper:    est + critical95*se,
		}
		if se > 0 {
			entry.PValue = 2 * stdNormal.Survival(math.Abs(est/se))
		} else {
			entry.PValue = math.NaN()
		}
		out = append(out, entry)
	}
	return out, nil
}

// irlsWeights returns the IRLS weights at the fitted values: 1 for the
// gaussian family, mu(1-mu) for the binomial family.
func (fr *FitResult) irlsWeights() []float64 {
	weights := make([]float64, fr.NumObs)
	for idx := range weights {
		switch fr.Family {
		case Binomial:
			mu := clampProbability(fr.Fitted[idx])
			weights[idx] = mu * (1 - mu)
		default:
			weights[idx] = 1
		}
	}
	return weights
}
