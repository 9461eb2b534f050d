// Package pipeline runs one country's analysis end to end: load the three
// input tables, assemble the per-child analysis table with left joins,
// build the filtered cohort, compute the descriptive summary and density
// comparison, and run the three effect estimators.
//
// Everything a run depends on is declared in the country registry, so two
// runs over the same data directory produce identical output.
package pipeline

import (
	"path/filepath"

	"github.com/washb/sanlaz/internal/cohort"
	"github.com/washb/sanlaz/internal/dataset"
	"github.com/washb/sanlaz/internal/estimate"
	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/summarize"
)

// densityPoints is the grid size of the report's density panels.
const densityPoints = 64

// Outcome is the full result of one country run.
type Outcome struct {
	// Spec is the country spec that produced this outcome.
	Spec *CountrySpec

	// Cohort is the analysis cohort after all filters.
	Cohort *model.Cohort

	// Summary is the stratified descriptive table.
	Summary *summarize.Summary

	// Density is the pairwise outcome density comparison.
	Density *summarize.DensityPair

	// Estimates holds the three effect estimates and the screening
	// record of the adjusted model.
	Estimates *estimate.Results
}

// Run executes the country pipeline over the data directory. The OnFold
// callback, when not nil, receives cross-validation progress from the
// double-robust estimator.
func Run(spec *CountrySpec, datadir string, logger model.Logger,
	onFold func(fold, total int)) (*Outcome, error) {
	table, err := LoadAnalysisTable(spec, datadir, logger)
	if err != nil {
		return nil, err
	}

	built, err := cohort.Build(table, &spec.Cohort, logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("pipeline: %s: analysis cohort has %d children in %d blocks",
		spec.Name, built.Size(), countBlocks(built))

	covariates := cohort.ResolveLevels(spec.Cohort.Covariates, built)

	summary, err := summarize.Describe(built)
	if err != nil {
		return nil, err
	}
	density, err := summarize.Density(built, spec.DensityPair[0], spec.DensityPair[1], densityPoints)
	if err != nil {
		return nil, err
	}

	estimates, err := estimate.RunAll(&estimate.Request{
		Cohort:     built,
		Contrast:   spec.Contrast,
		Covariates: covariates,
		Seed:       spec.Seed,
		OnFold:     onFold,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Spec:      spec,
		Cohort:    built,
		Summary:   summary,
		Density:   density,
		Estimates: estimates,
	}, nil
}

// LoadAnalysisTable reads the three input files and joins them into the
// per-child analysis table, with the anthropometry table driving.
func LoadAnalysisTable(spec *CountrySpec, datadir string, logger model.Logger) (*dataset.Table, error) {
	anthro, err := dataset.ReadCSV("anthropometry", filepath.Join(datadir, spec.AnthroFile))
	if err != nil {
		return nil, err
	}
	treatment, err := dataset.ReadCSV("treatment", filepath.Join(datadir, spec.TreatmentFile))
	if err != nil {
		return nil, err
	}
	enrollment, err := dataset.ReadCSV("enrollment", filepath.Join(datadir, spec.EnrollmentFile))
	if err != nil {
		return nil, err
	}
	logger.Debugf("pipeline: %s: anthro %d rows, treatment %d rows, enrollment %d rows",
		spec.Name, anthro.NumRows(), treatment.NumRows(), enrollment.NumRows())

	table, err := anthro.LeftJoin(treatment, spec.TreatmentKeys...)
	if err != nil {
		return nil, err
	}
	table, err = table.LeftJoin(enrollment, spec.EnrollmentKeys...)
	if err != nil {
		return nil, err
	}
	return table, nil
}

func countBlocks(c *model.Cohort) int {
	blocks := make(map[string]bool)
	for idx := range c.Children {
		blocks[c.Children[idx].Block] = true
	}
	return len(blocks)
}
