// Package cohort turns the joined analysis table into the filtered cohort
// an estimator can consume.
//
// Filters apply in a fixed order: (a) endpoint-visit filter; (b) outcome
// validity filter; (c) control-arm filter; (d) exposure validity filter.
// Exposure derivation is a pure function of the raw sanitation cells, and
// every retained record carries exactly one non-missing exposure level.
// The missingness policy for exposure inputs is country-specific and
// deliberately asymmetric between the two trials: the derivation function
// in the country spec encodes it.
package cohort

import (
	"strings"

	"github.com/washb/sanlaz/internal/dataset"
	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/optional"
)

// Config declares the country-specific cohort rules. All fields are fixed
// before the pipeline runs; nothing here is data-driven.
type Config struct {
	// Country is the country label.
	Country string

	// ClusterColumn, BlockColumn, HouseholdColumn, ChildColumn name the
	// identifier columns in the joined table.
	ClusterColumn   string
	BlockColumn     string
	HouseholdColumn string
	ChildColumn     string

	// VisitColumn and FinalVisit select the endpoint visit.
	VisitColumn string
	FinalVisit  string

	// OutcomeColumn is the LAZ/HAZ column. OutcomeFlagColumn, when not
	// empty, names the implausible-measurement flag column: rows whose
	// flag equals "1" are dropped.
	OutcomeColumn     string
	OutcomeFlagColumn string

	// ArmColumn and ControlArms select the control-arm rows. More than
	// one label may count as control (e.g. Kenya's passive control).
	ArmColumn   string
	ControlArms []string

	// ExposureColumns names the raw sanitation cells fed to Exposure,
	// in the order Exposure expects them.
	ExposureColumns []string

	// ExposureLevels lists the derivable levels in declared order.
	ExposureLevels []model.ExposureLevel

	// Exposure derives the exposure category from the raw cells. It
	// must be a pure function. Returning None excludes the row, which
	// is how Kenya's missing-status exclusion is expressed; Bangladesh
	// instead maps missing inputs to the baseline level.
	Exposure func(cells []optional.Value[string]) optional.Value[model.ExposureLevel]

	// Covariates is the pre-specified covariate list.
	Covariates model.CovariateSet
}

// Outcome measurements outside this range are implausible for a
// length-for-age z-score and excluded regardless of the flag column.
const (
	outcomeMin = -6.0
	outcomeMax = 6.0
)

// Build applies the filters in order and returns the cohort.
func Build(table *dataset.Table, cfg *Config, logger model.Logger) (*model.Cohort, error) {
	columns := []string{
		cfg.ClusterColumn, cfg.BlockColumn, cfg.HouseholdColumn,
		cfg.VisitColumn, cfg.OutcomeColumn, cfg.ArmColumn,
	}
	if cfg.ChildColumn != "" {
		columns = append(columns, cfg.ChildColumn)
	}
	if cfg.OutcomeFlagColumn != "" {
		columns = append(columns, cfg.OutcomeFlagColumn)
	}
	columns = append(columns, cfg.ExposureColumns...)
	columns = append(columns, cfg.Covariates.Names()...)
	if err := table.Require(columns...); err != nil {
		return nil, err
	}

	control := make(map[string]bool, len(cfg.ControlArms))
	for _, arm := range cfg.ControlArms {
		control[arm] = true
	}

	var droppedVisit, droppedOutcome, droppedArm, droppedExposure int
	cohort := &model.Cohort{Country: cfg.Country, Levels: cfg.ExposureLevels}
	for row := 0; row < table.NumRows(); row++ {
		if table.Cell(cfg.VisitColumn, row).UnwrapOr("") != cfg.FinalVisit {
			droppedVisit++
			continue
		}
		outcome, ok := validOutcome(table, cfg, row)
		if !ok {
			droppedOutcome++
			continue
		}
		arm := table.Cell(cfg.ArmColumn, row).UnwrapOr("")
		if !control[arm] {
			droppedArm++
			continue
		}
		cells := make([]optional.Value[string], 0, len(cfg.ExposureColumns))
		for _, name := range cfg.ExposureColumns {
			cells = append(cells, table.Cell(name, row))
		}
		exposure := cfg.Exposure(cells)
		if exposure.IsNone() {
			droppedExposure++
			continue
		}
		cohort.Children = append(cohort.Children, model.ChildRecord{
			ClusterID:   table.Cell(cfg.ClusterColumn, row).UnwrapOr(""),
			Block:       table.Cell(cfg.BlockColumn, row).UnwrapOr(""),
			HouseholdID: table.Cell(cfg.HouseholdColumn, row).UnwrapOr(""),
			ChildID:     childID(table, cfg, row),
			Arm:         arm,
			Exposure:    exposure.Unwrap(),
			Outcome:     outcome,
			Numeric:     numericCovariates(table, cfg, row),
			Factor:      factorCovariates(table, cfg, row),
		})
	}

	logger.Debugf(
		"cohort: %s: dropped %d by visit, %d by outcome, %d by arm, %d by exposure; kept %d",
		cfg.Country, droppedVisit, droppedOutcome, droppedArm, droppedExposure, cohort.Size(),
	)
	if cohort.Size() <= 0 {
		return nil, &model.CohortEmptyError{Country: cfg.Country, Stage: "exposure"}
	}
	return cohort, nil
}

// validOutcome parses and validates the outcome cell.
func validOutcome(table *dataset.Table, cfg *Config, row int) (float64, bool) {
	if cfg.OutcomeFlagColumn != "" {
		flag := table.Cell(cfg.OutcomeFlagColumn, row)
		if !flag.IsNone() && strings.TrimSpace(flag.Unwrap()) == "1" {
			return 0, false
		}
	}
	series := table.Column(cfg.OutcomeColumn)
	value := series.Float(row)
	if value.IsNone() {
		return 0, false
	}
	outcome := value.Unwrap()
	if outcome < outcomeMin || outcome > outcomeMax {
		return 0, false
	}
	return outcome, true
}

func childID(table *dataset.Table, cfg *Config, row int) string {
	if cfg.ChildColumn == "" {
		return ""
	}
	return table.Cell(cfg.ChildColumn, row).UnwrapOr("")
}

func numericCovariates(table *dataset.Table, cfg *Config, row int) map[string]optional.Value[float64] {
	out := make(map[string]optional.Value[float64])
	for _, spec := range cfg.Covariates {
		if spec.Type != model.Continuous {
			continue
		}
		out[spec.Name] = table.Column(spec.Name).Float(row)
	}
	return out
}

func factorCovariates(table *dataset.Table, cfg *Config, row int) map[string]optional.Value[string] {
	out := make(map[string]optional.Value[string])
	for _, spec := range cfg.Covariates {
		if spec.Type != model.Categorical {
			continue
		}
		out[spec.Name] = table.Cell(spec.Name, row)
	}
	return out
}
