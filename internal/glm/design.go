package glm

import (
	"math"

	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Design is a model matrix built from cohort records, together with the
// aligned response, cluster labels, and the indices of the cohort rows
// that survived complete-case selection.
type Design struct {
	// X is the model matrix.
	X *mat.Dense

	// Names labels the columns of X.
	Names []string

	// Y is the response, aligned with the rows of X.
	Y []float64

	// Clusters holds the block label of each row of X.
	Clusters []string

	// Kept holds, for each row of X, the index of the originating
	// record in the input slice.
	Kept []int
}

// DesignOptions configures BuildDesign.
type DesignOptions struct {
	// Intercept adds a leading all-ones column when true.
	Intercept bool

	// Treatment, when not nil, adds a binary indicator column named
	// "exposure" that is 1 for records at the contrast's exposed level.
	// Records at neither contrast level must be excluded by the caller.
	Treatment *model.Contrast

	// Covariates lists the adjustment covariates to expand. Categorical
	// covariates become one dummy column per non-reference level, in
	// the releveled ordering carried by the CovariateSpec.
	Covariates model.CovariateSet

	// Response selects the response: the outcome when false, the
	// treatment indicator when true (used by the exposure model).
	TreatmentResponse bool
}

// BuildDesign expands records into a model matrix. Records missing any
// requested covariate value are dropped (complete-case analysis); the
// Kept field records which rows remain.
func BuildDesign(records []model.ChildRecord, opts *DesignOptions) (*Design, error) {
	var names []string
	if opts.Intercept {
		names = append(names, "(Intercept)")
	}
	if opts.Treatment != nil {
		names = append(names, "exposure")
	}
	for _, spec := range opts.Covariates {
		switch spec.Type {
		case model.Continuous:
			names = append(names, spec.Name)
		case model.Categorical:
			for _, level := range spec.Levels {
				names = append(names, spec.Name+"="+level)
			}
		}
	}

	var rows []float64
	var response []float64
	var clusters []string
	var kept []int
	for idx := range records {
		record := &records[idx]
		row, ok := designRow(record, opts)
		if !ok {
			continue
		}
		rows = append(rows, row...)
		response = append(response, responseFor(record, opts))
		clusters = append(clusters, record.Block)
		kept = append(kept, idx)
	}
	if len(kept) == 0 {
		return nil, errors.New("glm: no complete cases")
	}

	design := &Design{
		X:        mat.NewDense(len(kept), len(names), rows),
		Names:    names,
		Y:        response,
		Clusters: clusters,
		Kept:     kept,
	}
	if err := design.checkVariance(opts); err != nil {
		return nil, err
	}
	return design, nil
}

// designRow expands one record, returning ok=false on a missing value.
func designRow(record *model.ChildRecord, opts *DesignOptions) ([]float64, bool) {
	var row []float64
	if opts.Intercept {
		row = append(row, 1)
	}
	if opts.Treatment != nil {
		row = append(row, treatmentIndicator(record, opts.Treatment))
	}
	for _, spec := range opts.Covariates {
		switch spec.Type {
		case model.Continuous:
			value := record.Numeric[spec.Name]
			if value.IsNone() {
				return nil, false
			}
			row = append(row, value.Unwrap())
		case model.Categorical:
			value := record.Factor[spec.Name]
			if value.IsNone() {
				return nil, false
			}
			level := value.Unwrap()
			for _, candidate := range spec.Levels {
				if level == candidate {
					row = append(row, 1)
				} else {
					row = append(row, 0)
				}
			}
		}
	}
	return row, true
}

func treatmentIndicator(record *model.ChildRecord, contrast *model.Contrast) float64 {
	if record.Exposure == contrast.Exposed {
		return 1
	}
	return 0
}

func responseFor(record *model.ChildRecord, opts *DesignOptions) float64 {
	if opts.TreatmentResponse {
		return treatmentIndicator(record, opts.Treatment)
	}
	return record.Outcome
}

// checkVariance fails with an EstimationError when any non-intercept
// column is constant: a zero-variance covariate makes the fit singular
// and must surface as a diagnosable error, not as NaN coefficients.
func (d *Design) checkVariance(opts *DesignOptions) error {
	numRows, numCols := d.X.Dims()
	start := 0
	if opts.Intercept {
		start = 1
	}
	for col := start; col < numCols; col++ {
		first := d.X.At(0, col)
		constant := true
		for row := 1; row < numRows; row++ {
			if math.Abs(d.X.At(row, col)-first) > 0 {
				constant = false
				break
			}
		}
		if constant {
			return &model.EstimationError{
				Estimator: "design",
				Reason:    "covariate " + d.Names[col] + " has zero variance in the cohort",
			}
		}
	}
	return nil
}

// CountClusters returns the number of distinct cluster labels.
func (d *Design) CountClusters() int {
	seen := make(map[string]bool)
	for _, cluster := range d.Clusters {
		seen[cluster] = true
	}
	return len(seen)
}
