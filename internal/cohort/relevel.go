package cohort

import (
	"sort"

	"github.com/washb/sanlaz/internal/model"
)

// Relevel returns the full level ordering of a categorical covariate with
// the declared reference level first. The ordering is: reference, then the
// declared non-reference levels in declared order, then any level observed
// in the cohort but not declared, in lexicographic order. The result never
// depends on row order, so releveling is deterministic and idempotent.
func Relevel(spec model.CovariateSpec, cohort *model.Cohort) []string {
	seen := map[string]bool{spec.Reference: true}
	ordered := []string{spec.Reference}
	for _, level := range spec.Levels {
		if seen[level] {
			continue
		}
		seen[level] = true
		ordered = append(ordered, level)
	}
	var extra []string
	for idx := range cohort.Children {
		value := cohort.Children[idx].Factor[spec.Name]
		if value.IsNone() {
			continue
		}
		level := value.Unwrap()
		if seen[level] {
			continue
		}
		seen[level] = true
		extra = append(extra, level)
	}
	sort.Strings(extra)
	return append(ordered, extra...)
}

// ResolveLevels returns a copy of the covariate set where every
// categorical covariate's Levels field holds its complete releveled
// ordering (reference first). Estimators build dummy columns from this
// ordering, so coefficient interpretation is fixed before any fit runs.
func ResolveLevels(covariates model.CovariateSet, cohort *model.Cohort) model.CovariateSet {
	resolved := make(model.CovariateSet, 0, len(covariates))
	for _, spec := range covariates {
		if spec.Type == model.Categorical {
			levels := Relevel(spec, cohort)
			spec.Levels = levels[1:] // reference is implied by spec.Reference
		}
		resolved = append(resolved, spec)
	}
	return resolved
}
