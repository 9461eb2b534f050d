package cohort

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/washb/sanlaz/internal/dataset"
	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/must"
	"github.com/washb/sanlaz/internal/optional"
)

const (
	testNoLatrine = model.ExposureLevel("No improved latrine")
	testLatrine   = model.ExposureLevel("Improved latrine")
)

func testConfig() *Config {
	return &Config{
		Country:           "kenya",
		ClusterColumn:     "clusterid",
		BlockColumn:       "block",
		HouseholdColumn:   "hhid",
		ChildColumn:       "childid",
		VisitColumn:       "svy",
		FinalVisit:        "2",
		OutcomeColumn:     "haz",
		OutcomeFlagColumn: "haz_x",
		ArmColumn:         "tr",
		ControlArms:       []string{"Control", "Passive Control"},
		ExposureColumns:   []string{"improved_latrine"},
		ExposureLevels:    []model.ExposureLevel{testNoLatrine, testLatrine},
		Exposure: func(cells []optional.Value[string]) optional.Value[model.ExposureLevel] {
			if cells[0].IsNone() {
				return optional.None[model.ExposureLevel]()
			}
			if cells[0].Unwrap() == "1" {
				return optional.Some(testLatrine)
			}
			return optional.Some(testNoLatrine)
		},
		Covariates: model.CovariateSet{
			{Name: "aged", Type: model.Continuous},
			{Name: "momedu", Type: model.Categorical, Reference: "IncompletePrimary"},
		},
	}
}

func loadTable(t *testing.T, rows ...string) *dataset.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "joined.csv")
	header := "clusterid,block,hhid,childid,svy,haz,haz_x,tr,improved_latrine,aged,momedu"
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	must.WriteFile(path, []byte(content), 0600)
	table, err := dataset.ReadCSV("joined", path)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestBuild(t *testing.T) {
	t.Run("applies the filters in order", func(t *testing.T) {
		table := loadTable(t,
			"c1,b1,h1,k1,2,-1.50,0,Control,1,300,Primary",      // kept
			"c1,b1,h2,k2,1,-1.00,0,Control,1,300,Primary",      // wrong visit
			"c1,b1,h3,k3,2,-1.00,1,Control,1,300,Primary",      // flagged outcome
			"c1,b1,h4,k4,2,7.00,0,Control,1,300,Primary",       // implausible outcome
			"c1,b1,h5,k5,2,NA,0,Control,1,300,Primary",         // missing outcome
			"c2,b2,h6,k6,2,-0.80,0,Sanitation,1,300,Primary",   // not control
			"c2,b2,h7,k7,2,-0.80,0,Passive Control,NA,300,NA",  // missing exposure
			"c2,b2,h8,k8,2,-0.80,0,Passive Control,0,250,None", // kept
		)
		cohort, err := Build(table, testConfig(), model.DiscardLogger)
		if err != nil {
			t.Fatal(err)
		}
		if cohort.Size() != 2 {
			t.Fatal("unexpected cohort size", cohort.Size())
		}
		if cohort.CountLevel(testLatrine) != 1 || cohort.CountLevel(testNoLatrine) != 1 {
			t.Fatal("unexpected level counts")
		}
	})

	t.Run("fills the record fields", func(t *testing.T) {
		table := loadTable(t,
			"c9,b9,h9,k9,2,-2.25,0,Control,1,366,AnySecondary",
		)
		cohort, err := Build(table, testConfig(), model.DiscardLogger)
		if err != nil {
			t.Fatal(err)
		}
		record := cohort.Children[0]
		if record.ClusterID != "c9" || record.Block != "b9" ||
			record.HouseholdID != "h9" || record.ChildID != "k9" {
			t.Fatal("unexpected identifiers", record)
		}
		if record.Outcome != -2.25 {
			t.Fatal("unexpected outcome", record.Outcome)
		}
		if record.Numeric["aged"].UnwrapOr(0) != 366 {
			t.Fatal("unexpected aged")
		}
		if record.Factor["momedu"].UnwrapOr("") != "AnySecondary" {
			t.Fatal("unexpected momedu")
		}
	})

	t.Run("missing covariates stay missing rather than dropping the row", func(t *testing.T) {
		table := loadTable(t,
			"c1,b1,h1,k1,2,-1.00,0,Control,1,NA,NA",
		)
		cohort, err := Build(table, testConfig(), model.DiscardLogger)
		if err != nil {
			t.Fatal(err)
		}
		if cohort.Size() != 1 {
			t.Fatal("unexpected cohort size")
		}
		if !cohort.Children[0].Numeric["aged"].IsNone() {
			t.Fatal("expected missing aged")
		}
	})

	t.Run("empty cohort is a CohortEmptyError", func(t *testing.T) {
		table := loadTable(t,
			"c1,b1,h1,k1,1,-1.00,0,Control,1,300,Primary",
		)
		_, err := Build(table, testConfig(), model.DiscardLogger)
		if _, ok := err.(*model.CohortEmptyError); !ok {
			t.Fatal("expected a CohortEmptyError, got", err)
		}
	})

	t.Run("missing declared column is a SchemaError", func(t *testing.T) {
		table := loadTable(t,
			"c1,b1,h1,k1,2,-1.00,0,Control,1,300,Primary",
		)
		cfg := testConfig()
		cfg.Covariates = append(cfg.Covariates, model.CovariateSpec{
			Name: "momheight", Type: model.Continuous,
		})
		_, err := Build(table, cfg, model.DiscardLogger)
		if _, ok := err.(*model.SchemaError); !ok {
			t.Fatal("expected a SchemaError, got", err)
		}
	})
}

func TestRelevel(t *testing.T) {
	spec := model.CovariateSpec{
		Name:      "momedu",
		Type:      model.Categorical,
		Reference: "IncompletePrimary",
		Levels:    []string{"Primary", "AnySecondary"},
	}
	cohort := &model.Cohort{
		Children: []model.ChildRecord{
			{Factor: map[string]optional.Value[string]{"momedu": optional.Some("Primary")}},
			{Factor: map[string]optional.Value[string]{"momedu": optional.Some("Zz")}},
			{Factor: map[string]optional.Value[string]{"momedu": optional.Some("Aa")}},
			{Factor: map[string]optional.Value[string]{"momedu": optional.None[string]()}},
		},
	}

	t.Run("reference first, declared order, lexicographic extras", func(t *testing.T) {
		expect := []string{"IncompletePrimary", "Primary", "AnySecondary", "Aa", "Zz"}
		if diff := cmp.Diff(expect, Relevel(spec, cohort)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("releveling is idempotent", func(t *testing.T) {
		first := Relevel(spec, cohort)
		second := Relevel(spec, cohort)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ResolveLevels strips the reference from Levels", func(t *testing.T) {
		resolved := ResolveLevels(model.CovariateSet{spec}, cohort)
		expect := []string{"Primary", "AnySecondary", "Aa", "Zz"}
		if diff := cmp.Diff(expect, resolved[0].Levels); diff != "" {
			t.Fatal(diff)
		}
	})
}
