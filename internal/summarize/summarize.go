// Package summarize computes the descriptive statistics of the cohort:
// per-exposure-category counts, percentages of the full cohort, outcome
// means and standard deviations, and the raw and density-smoothed outcome
// distributions used by the report's density panels. Nothing here mutates
// the cohort.
package summarize

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/model"
)

// CategorySummary describes one exposure category.
type CategorySummary struct {
	// Level is the exposure category level.
	Level model.ExposureLevel

	// N is the number of children in the category.
	N int

	// Percent is N over the full cohort size, in percent. The
	// denominator is always the whole cohort, not the category.
	Percent float64

	// Mean is the mean outcome within the category.
	Mean float64

	// SD is the sample standard deviation of the outcome.
	SD float64
}

// Summary is the stratified descriptive table for one cohort.
type Summary struct {
	// Country is the cohort's country label.
	Country string

	// Total is the full cohort size.
	Total int

	// Categories holds one entry per exposure level, in the cohort's
	// declared level order, including empty levels with N == 0.
	Categories []CategorySummary
}

// Describe computes the stratified summary.
func Describe(cohort *model.Cohort) (*Summary, error) {
	summary := &Summary{Country: cohort.Country, Total: cohort.Size()}
	for _, level := range cohort.Levels {
		values := Values(cohort, level)
		entry := CategorySummary{Level: level, N: len(values)}
		if summary.Total > 0 {
			entry.Percent = 100 * float64(len(values)) / float64(summary.Total)
		}
		if len(values) > 0 {
			mean, err := stats.Mean(values)
			if err != nil {
				return nil, errors.Wrap(err, "summarize: mean")
			}
			entry.Mean = mean
		}
		if len(values) > 1 {
			sd, err := stats.StandardDeviationSample(values)
			if err != nil {
				return nil, errors.Wrap(err, "summarize: sd")
			}
			entry.SD = sd
		}
		summary.Categories = append(summary.Categories, entry)
	}
	return summary, nil
}

// Values returns the outcome sequence for one exposure level, in cohort
// row order. This is the raw input for distribution visualization.
func Values(cohort *model.Cohort, level model.ExposureLevel) []float64 {
	var values []float64
	for idx := range cohort.Children {
		if cohort.Children[idx].Exposure == level {
			values = append(values, cohort.Children[idx].Outcome)
		}
	}
	return values
}

// DensityPair is a pairwise density comparison between two exposure
// levels, evaluated on a common grid. In the three-level Bangladesh case
// the third level is simply absent from the pair.
type DensityPair struct {
	// LevelA and LevelB are the compared levels.
	LevelA model.ExposureLevel
	LevelB model.ExposureLevel

	// Grid holds the outcome values at which both densities are
	// evaluated.
	Grid []float64

	// DensityA and DensityB are the kernel density estimates of the
	// two levels on the grid.
	DensityA []float64
	DensityB []float64

	// ValuesA and ValuesB are the raw outcome sequences.
	ValuesA []float64
	ValuesB []float64
}

// Density computes a pairwise gaussian-kernel density comparison on a
// grid of the given size spanning both levels' outcome range.
func Density(cohort *model.Cohort, levelA, levelB model.ExposureLevel, points int) (*DensityPair, error) {
	valuesA := Values(cohort, levelA)
	valuesB := Values(cohort, levelB)
	if len(valuesA) < 2 || len(valuesB) < 2 {
		return nil, errors.Errorf(
			"summarize: density needs at least 2 observations per level, got %d and %d",
			len(valuesA), len(valuesB),
		)
	}
	lo := math.Min(minOf(valuesA), minOf(valuesB))
	hi := math.Max(maxOf(valuesA), maxOf(valuesB))
	pair := &DensityPair{
		LevelA:  levelA,
		LevelB:  levelB,
		ValuesA: valuesA,
		ValuesB: valuesB,
	}
	for idx := 0; idx < points; idx++ {
		pair.Grid = append(pair.Grid, lo+(hi-lo)*float64(idx)/float64(points-1))
	}
	pair.DensityA = kde(valuesA, pair.Grid)
	pair.DensityB = kde(valuesB, pair.Grid)
	return pair, nil
}

// kde evaluates a gaussian kernel density estimate with Silverman's
// rule-of-thumb bandwidth on the grid.
func kde(values []float64, grid []float64) []float64 {
	sd, err := stats.StandardDeviationSample(values)
	if err != nil || sd <= 0 {
		sd = 1
	}
	bandwidth := 1.06 * sd * math.Pow(float64(len(values)), -0.2)
	out := make([]float64, len(grid))
	norm := 1 / (bandwidth * math.Sqrt(2*math.Pi) * float64(len(values)))
	for gi, g := range grid {
		var sum float64
		for _, v := range values {
			z := (g - v) / bandwidth
			sum += math.Exp(-0.5 * z * z)
		}
		out[gi] = norm * sum
	}
	return out
}

func minOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		out = math.Min(out, v)
	}
	return out
}

func maxOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		out = math.Max(out, v)
	}
	return out
}
