package model

import "github.com/washb/sanlaz/internal/optional"

//
// Cohort
//

// ExposureLevel is one level of the derived sanitation exposure category.
type ExposureLevel string

// ChildRecord is one child at the endpoint visit, after joining the
// treatment, enrollment, and anthropometry tables and applying the cohort
// filters. Records are never mutated after the cohort builder returns them.
type ChildRecord struct {
	// ClusterID identifies the trial cluster.
	ClusterID string

	// Block identifies the randomization block, which is the
	// clustering unit for all variance computations.
	Block string

	// HouseholdID identifies the household (dataid in Bangladesh,
	// hhid in Kenya).
	HouseholdID string

	// ChildID identifies the child within the household.
	ChildID string

	// Arm is the trial arm label.
	Arm string

	// Exposure is the derived sanitation exposure category. The cohort
	// builder guarantees it is non-missing for every retained record.
	Exposure ExposureLevel

	// Outcome is the length-for-age z-score at the endpoint visit.
	Outcome float64

	// Numeric holds the continuous covariate values by name.
	Numeric map[string]optional.Value[float64]

	// Factor holds the categorical covariate values by name.
	Factor map[string]optional.Value[string]
}

// Cohort is the filtered analysis population for one country.
type Cohort struct {
	// Country is the country label ("bangladesh" or "kenya").
	Country string

	// Levels lists the exposure category levels in their declared order.
	Levels []ExposureLevel

	// Children contains one record per included child.
	Children []ChildRecord
}

// Size returns the number of children in the cohort.
func (c *Cohort) Size() int {
	return len(c.Children)
}

// CountLevel returns how many children have the given exposure level.
func (c *Cohort) CountLevel(level ExposureLevel) int {
	var count int
	for idx := range c.Children {
		if c.Children[idx].Exposure == level {
			count++
		}
	}
	return count
}

// Contrast declares the pair of exposure levels an estimator compares. The
// estimate is always the Exposed-level mean minus the Baseline-level mean,
// so swapping the two fields negates the estimate and its CI.
type Contrast struct {
	// Baseline is the reference level (e.g. "No latrine").
	Baseline ExposureLevel

	// Exposed is the comparison level (e.g. "Latrine with water seal").
	Exposed ExposureLevel
}

// Swap returns the contrast with the two levels exchanged.
func (c Contrast) Swap() Contrast {
	return Contrast{Baseline: c.Exposed, Exposed: c.Baseline}
}
