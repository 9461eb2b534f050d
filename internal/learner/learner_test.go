package learner

import (
	"math"
	"testing"

	"github.com/washb/sanlaz/internal/glm"
	"gonum.org/v1/gonum/mat"
)

// linearData generates a noiseless y = 1 + 2x regression problem.
func linearData(n int) (*mat.Dense, []float64) {
	x := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for idx := 0; idx < n; idx++ {
		value := float64(idx) / float64(n-1)
		x.Set(idx, 0, value)
		y[idx] = 1 + 2*value
	}
	return x, y
}

func maxAbsError(got, want []float64) float64 {
	var out float64
	for idx := range got {
		out = math.Max(out, math.Abs(got[idx]-want[idx]))
	}
	return out
}

func TestMean(t *testing.T) {
	t.Run("predicts the overall mean", func(t *testing.T) {
		x := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
		predictor, err := (&Mean{}).Fit(x, []float64{1, 2, 3, 6}, glm.Gaussian)
		if err != nil {
			t.Fatal(err)
		}
		predictions := predictor.Predict(x)
		for _, value := range predictions {
			if value != 3 {
				t.Fatal("unexpected prediction", value)
			}
		}
	})

	t.Run("fails on an empty response", func(t *testing.T) {
		if _, err := (&Mean{}).Fit(mat.NewDense(1, 1, nil), nil, glm.Gaussian); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestGLMLearner(t *testing.T) {
	x, y := linearData(20)
	predictor, err := (&GLM{}).Fit(x, y, glm.Gaussian)
	if err != nil {
		t.Fatal(err)
	}
	if maxAbsError(predictor.Predict(x), y) > 1e-8 {
		t.Fatal("the GLM learner must interpolate a noiseless linear target")
	}
}

func TestRidge(t *testing.T) {
	t.Run("shrinks toward but stays close to the OLS fit", func(t *testing.T) {
		x, y := linearData(50)
		predictor, err := (&Ridge{Lambda: 0.1}).Fit(x, y, glm.Gaussian)
		if err != nil {
			t.Fatal(err)
		}
		if maxAbsError(predictor.Predict(x), y) > 0.1 {
			t.Fatal("ridge with a weak penalty drifted too far from the target")
		}
	})

	t.Run("binomial predictions are probabilities", func(t *testing.T) {
		x := mat.NewDense(10, 1, []float64{0, 0, 0, 0, 0, 1, 1, 1, 1, 1})
		y := []float64{0, 0, 0, 0, 1, 1, 1, 1, 1, 0}
		predictor, err := (&Ridge{Lambda: 0.1}).Fit(x, y, glm.Binomial)
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range predictor.Predict(x) {
			if p <= 0 || p >= 1 {
				t.Fatal("probability out of range", p)
			}
		}
	})
}

func TestGAM(t *testing.T) {
	t.Run("captures a smooth nonlinear signal", func(t *testing.T) {
		n := 80
		x := mat.NewDense(n, 1, nil)
		y := make([]float64, n)
		for idx := 0; idx < n; idx++ {
			value := float64(idx) / float64(n-1) * 4
			x.Set(idx, 0, value)
			y[idx] = math.Sin(value)
		}
		predictor, err := (&GAM{DF: 4}).Fit(x, y, glm.Gaussian)
		if err != nil {
			t.Fatal(err)
		}
		if maxAbsError(predictor.Predict(x), y) > 0.15 {
			t.Fatal("spline fit too far from the smooth target")
		}
	})

	t.Run("binary features pass through linearly", func(t *testing.T) {
		column := []float64{0, 1, 0, 1, 0, 1}
		basis := newSplineBasis(column, 4)
		if basis.width() != 1 {
			t.Fatal("a dummy column must stay linear")
		}
	})

	t.Run("spline basis is continuous at the knots", func(t *testing.T) {
		column := make([]float64, 100)
		for idx := range column {
			column[idx] = float64(idx)
		}
		basis := newSplineBasis(column, 4)
		if len(basis.knots) != 5 {
			t.Fatal("expected df+1 knots")
		}
		for _, knot := range basis.knots {
			lo := mat.NewDense(1, basis.width(), nil)
			hi := mat.NewDense(1, basis.width(), nil)
			basis.evaluate(knot-1e-9, lo, 0, 0)
			basis.evaluate(knot+1e-9, hi, 0, 0)
			for col := 0; col < basis.width(); col++ {
				if math.Abs(lo.At(0, col)-hi.At(0, col)) > 1e-6 {
					t.Fatal("discontinuity at knot", knot)
				}
			}
		}
	})
}

func TestLasso(t *testing.T) {
	t.Run("ignores an irrelevant feature", func(t *testing.T) {
		n := 60
		x := mat.NewDense(n, 2, nil)
		y := make([]float64, n)
		for idx := 0; idx < n; idx++ {
			value := float64(idx) / float64(n-1)
			x.Set(idx, 0, value)
			// A deterministic low-correlation second column.
			x.Set(idx, 1, float64(idx%7))
			y[idx] = 3 * value
		}
		predictor, err := (&Lasso{}).Fit(x, y, glm.Gaussian)
		if err != nil {
			t.Fatal(err)
		}
		if maxAbsError(predictor.Predict(x), y) > 0.25 {
			t.Fatal("lasso fit too far from the linear target")
		}
	})

	t.Run("the fit is deterministic", func(t *testing.T) {
		x, y := linearData(40)
		first, err := (&Lasso{}).Fit(x, y, glm.Gaussian)
		if err != nil {
			t.Fatal(err)
		}
		second, err := (&Lasso{}).Fit(x, y, glm.Gaussian)
		if err != nil {
			t.Fatal(err)
		}
		if maxAbsError(first.Predict(x), second.Predict(x)) != 0 {
			t.Fatal("two identical fits predicted differently")
		}
	})
}

func TestNNLS(t *testing.T) {
	t.Run("recovers nonnegative weights", func(t *testing.T) {
		// y is exactly 0.7*col0 + 0.3*col1.
		a := mat.NewDense(6, 2, []float64{
			1, 0,
			0, 1,
			1, 1,
			2, 1,
			1, 2,
			3, 0,
		})
		y := make([]float64, 6)
		for row := 0; row < 6; row++ {
			y[row] = 0.7*a.At(row, 0) + 0.3*a.At(row, 1)
		}
		weights := nnls(a, y)
		if math.Abs(weights[0]-0.7) > 1e-6 || math.Abs(weights[1]-0.3) > 1e-6 {
			t.Fatal("unexpected weights", weights)
		}
	})

	t.Run("clips negative solutions to zero", func(t *testing.T) {
		// The unconstrained solution would give col1 a negative weight.
		a := mat.NewDense(4, 2, []float64{
			1, 1,
			2, 2,
			3, 3.1,
			4, 3.9,
		})
		y := []float64{1, 2, 3, 4}
		weights := nnls(a, y)
		for _, w := range weights {
			if w < 0 {
				t.Fatal("negative weight", weights)
			}
		}
	})
}

func TestSuperLearner(t *testing.T) {
	newProblem := func() (*mat.Dense, []float64) {
		n := 100
		x := mat.NewDense(n, 2, nil)
		y := make([]float64, n)
		for idx := 0; idx < n; idx++ {
			value := float64(idx) / float64(n-1)
			x.Set(idx, 0, value)
			x.Set(idx, 1, float64(idx%3))
			y[idx] = 0.5 + value + 0.2*float64(idx%3)
		}
		return x, y
	}

	t.Run("weights are convex and predictions track the target", func(t *testing.T) {
		x, y := newProblem()
		super := &SuperLearner{Learners: Library(), Folds: 10, Seed: 12345}
		ensemble, err := super.Fit(x, y, glm.Gaussian)
		if err != nil {
			t.Fatal(err)
		}
		var total float64
		for _, weight := range ensemble.Weights {
			if weight < 0 {
				t.Fatal("negative ensemble weight")
			}
			total += weight
		}
		if math.Abs(total-1) > 1e-9 {
			t.Fatal("weights do not sum to 1, got", total)
		}
		if maxAbsError(ensemble.Predict(x), y) > 0.2 {
			t.Fatal("ensemble predictions too far from the target")
		}
	})

	t.Run("the same seed reproduces the fit bit for bit", func(t *testing.T) {
		x, y := newProblem()
		fit := func() []float64 {
			super := &SuperLearner{Learners: Library(), Folds: 10, Seed: 12345}
			ensemble, err := super.Fit(x, y, glm.Gaussian)
			if err != nil {
				t.Fatal(err)
			}
			return ensemble.Predict(x)
		}
		if maxAbsError(fit(), fit()) != 0 {
			t.Fatal("identical seeds produced different predictions")
		}
	})

	t.Run("a failing learner is dropped, not fatal", func(t *testing.T) {
		x, y := newProblem()
		super := &SuperLearner{
			Learners: []Learner{&failingLearner{}, &Mean{}, &GLM{}},
			Folds:    5,
			Seed:     12345,
		}
		ensemble, err := super.Fit(x, y, glm.Gaussian)
		if err != nil {
			t.Fatal(err)
		}
		if len(ensemble.Dropped) != 1 || ensemble.Dropped[0] != "failing" {
			t.Fatal("expected the failing learner to be dropped", ensemble.Dropped)
		}
		if ensemble.Weights[0] != 0 {
			t.Fatal("a dropped learner must have zero weight")
		}
	})

	t.Run("an empty library is an error", func(t *testing.T) {
		x, y := newProblem()
		super := &SuperLearner{Folds: 5, Seed: 12345}
		if _, err := super.Fit(x, y, glm.Gaussian); err == nil {
			t.Fatal("expected an error")
		}
	})
}

type failingLearner struct{}

func (*failingLearner) Name() string { return "failing" }

func (*failingLearner) Fit(x *mat.Dense, y []float64, family glm.Family) (Predictor, error) {
	return nil, errFailingLearner
}

var errFailingLearner = errTest("this learner always fails")

type errTest string

func (err errTest) Error() string { return string(err) }
