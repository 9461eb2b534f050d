package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/summarize"
)

const (
	noLatrine = model.ExposureLevel("No latrine")
	latrine   = model.ExposureLevel("Latrine with water seal")
)

func testCountryReport(country string) *CountryReport {
	cohort := &model.Cohort{
		Country: country,
		Levels:  []model.ExposureLevel{noLatrine, latrine},
	}
	for idx := 0; idx < 40; idx++ {
		spread := float64(idx%5)/10 - 0.2
		cohort.Children = append(cohort.Children,
			model.ChildRecord{Exposure: noLatrine, Outcome: -1.8 + spread},
			model.ChildRecord{Exposure: latrine, Outcome: -1.4 + spread},
		)
	}
	summary, err := summarize.Describe(cohort)
	if err != nil {
		panic(err)
	}
	density, err := summarize.Density(cohort, noLatrine, latrine, 64)
	if err != nil {
		panic(err)
	}
	return &CountryReport{
		Country: country,
		Summary: summary,
		Density: density,
		Estimates: []model.EstimateResult{
			{Estimator: model.EstimatorUnadjusted, Estimate: 0.4, Lower: 0.2, Upper: 0.6, PValue: 0.0004},
			{Estimator: model.EstimatorAdjusted, Estimate: 0.35, Lower: 0.18, Upper: 0.52, PValue: 0.002},
			{Estimator: model.EstimatorDoubleRobust, Estimate: 0.37, Lower: 0.2, Upper: 0.54, PValue: 0.001},
		},
	}
}

func render(t *testing.T, reports ...*CountryReport) string {
	t.Helper()
	color.NoColor = true
	aggregator := NewAggregator()
	for _, report := range reports {
		if err := aggregator.Add(report); err != nil {
			t.Fatal(err)
		}
	}
	var buffer bytes.Buffer
	if err := aggregator.Render(&buffer); err != nil {
		t.Fatal(err)
	}
	return buffer.String()
}

func TestRender(t *testing.T) {
	t.Run("contains the descriptive and estimate tables", func(t *testing.T) {
		output := render(t, testCountryReport("bangladesh"))
		for _, want := range []string{
			"BANGLADESH",
			"Sanitation access (N=80)",
			"No latrine",
			"Latrine with water seal",
			"Mean difference in length-for-age Z",
			model.EstimatorUnadjusted,
			model.EstimatorAdjusted,
			model.EstimatorDoubleRobust,
			"+0.400",
			"<0.001",
			"Outcome distribution",
		} {
			if !strings.Contains(output, want) {
				t.Fatal("output lacks", want)
			}
		}
	})

	t.Run("two countries add the comparison narrative", func(t *testing.T) {
		output := render(t, testCountryReport("bangladesh"), testCountryReport("kenya"))
		if !strings.Contains(output, "SUMMARY") {
			t.Fatal("missing cross-country summary")
		}
		if !strings.Contains(output, "In bangladesh,") || !strings.Contains(output, "In kenya,") {
			t.Fatal("narrative must mention both countries")
		}
		if strings.Index(output, "BANGLADESH") > strings.Index(output, "KENYA") {
			t.Fatal("countries must render in insertion order")
		}
	})

	t.Run("rendering is deterministic", func(t *testing.T) {
		first := render(t, testCountryReport("bangladesh"), testCountryReport("kenya"))
		second := render(t, testCountryReport("bangladesh"), testCountryReport("kenya"))
		edits := myers.ComputeEdits(span.URIFromPath("report.txt"), first, second)
		if len(edits) > 0 {
			t.Fatal(gotextdiff.ToUnified("first", "second", first, edits))
		}
	})

	t.Run("rendering nothing is an error", func(t *testing.T) {
		if err := NewAggregator().Render(&bytes.Buffer{}); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestAdd(t *testing.T) {
	t.Run("rejects a wrong number of estimates", func(t *testing.T) {
		report := testCountryReport("kenya")
		report.Estimates = report.Estimates[:2]
		err := NewAggregator().Add(report)
		if _, ok := err.(*model.ReportingError); !ok {
			t.Fatal("expected a ReportingError, got", err)
		}
	})

	t.Run("rejects estimates out of order", func(t *testing.T) {
		report := testCountryReport("kenya")
		report.Estimates[0], report.Estimates[1] = report.Estimates[1], report.Estimates[0]
		err := NewAggregator().Add(report)
		if _, ok := err.(*model.ReportingError); !ok {
			t.Fatal("expected a ReportingError, got", err)
		}
	})

	t.Run("rejects a missing summary", func(t *testing.T) {
		report := testCountryReport("kenya")
		report.Summary = nil
		err := NewAggregator().Add(report)
		if _, ok := err.(*model.ReportingError); !ok {
			t.Fatal("expected a ReportingError, got", err)
		}
	})
}
