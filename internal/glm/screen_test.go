package glm

import (
	"math"
	"testing"

	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/optional"
)

func screenRecords() []model.ChildRecord {
	// The outcome is an exact linear function of aged, while momedu's two
	// groups have identical means, so the likelihood-ratio decisions are
	// deterministic: aged in, momedu out.
	groups := []string{"A", "B", "B", "A", "A", "B", "B", "A"}
	var records []model.ChildRecord
	for idx := 0; idx < 8; idx++ {
		aged := float64(idx + 1)
		records = append(records, model.ChildRecord{
			Block:    "b1",
			Exposure: noLatrine,
			Outcome:  aged,
			Numeric:  map[string]optional.Value[float64]{"aged": optional.Some(aged)},
			Factor:   map[string]optional.Value[string]{"momedu": optional.Some(groups[idx])},
		})
	}
	return records
}

func TestScreen(t *testing.T) {
	covariates := model.CovariateSet{
		{Name: "aged", Type: model.Continuous},
		{Name: "momedu", Type: model.Categorical, Reference: "A", Levels: []string{"B"}},
	}

	t.Run("retains predictive covariates and drops inert ones", func(t *testing.T) {
		retained, decisions := Screen(screenRecords(), covariates)
		if len(retained) != 1 || retained[0].Name != "aged" {
			t.Fatal("unexpected retained set", retained)
		}
		if len(decisions) != 2 {
			t.Fatal("expected one decision per covariate")
		}
		if !decisions[0].Retained || decisions[0].PValue >= ScreenThreshold {
			t.Fatal("aged must be retained", decisions[0])
		}
		if decisions[1].Retained || decisions[1].PValue < ScreenThreshold {
			t.Fatal("momedu must be dropped", decisions[1])
		}
	})

	t.Run("screening is deterministic", func(t *testing.T) {
		_, first := Screen(screenRecords(), covariates)
		_, second := Screen(screenRecords(), covariates)
		for idx := range first {
			if first[idx] != second[idx] {
				t.Fatal("decisions differ between runs")
			}
		}
	})

	t.Run("an unscreenable covariate records NaN and is dropped", func(t *testing.T) {
		records := screenRecords()
		for idx := range records {
			records[idx].Numeric["aged"] = optional.Some(1.0)
		}
		retained, decisions := Screen(records, model.CovariateSet{
			{Name: "aged", Type: model.Continuous},
		})
		if len(retained) != 0 {
			t.Fatal("a constant covariate must not be retained")
		}
		if !math.IsNaN(decisions[0].PValue) || decisions[0].Retained {
			t.Fatal("expected a recorded NaN decision", decisions[0])
		}
	})
}
