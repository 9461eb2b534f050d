// Package report renders the comparative analysis report: one section per
// country with the descriptive table, a text rendering of the outcome
// density comparison, and the estimate table, followed by a cross-country
// narrative. The report only formats results computed upstream; it never
// recomputes a number.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mitchellh/go-wordwrap"
	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/summarize"
)

// CountryReport is the report input for one country.
type CountryReport struct {
	// Country is the country label.
	Country string

	// Summary is the stratified descriptive table.
	Summary *summarize.Summary

	// Density is the pairwise outcome density comparison.
	Density *summarize.DensityPair

	// Estimates holds the three effect estimates in presentation order:
	// unadjusted, adjusted, double robust.
	Estimates []model.EstimateResult
}

// Aggregator collects country reports and renders the combined document.
// Countries render in insertion order.
type Aggregator struct {
	reports []*CountryReport
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add validates and appends one country's results.
func (agg *Aggregator) Add(report *CountryReport) error {
	if report.Summary == nil || report.Density == nil {
		return &model.ReportingError{
			Country: report.Country,
			Detail:  "missing descriptive summary or density comparison",
		}
	}
	if len(report.Estimates) != len(model.EstimatorOrder) {
		return &model.ReportingError{
			Country: report.Country,
			Detail: fmt.Sprintf("expected %d estimates, got %d",
				len(model.EstimatorOrder), len(report.Estimates)),
		}
	}
	for idx, estimate := range report.Estimates {
		if estimate.Estimator != model.EstimatorOrder[idx] {
			return &model.ReportingError{
				Country: report.Country,
				Detail: fmt.Sprintf("estimate %d is %q, want %q",
					idx, estimate.Estimator, model.EstimatorOrder[idx]),
			}
		}
	}
	agg.reports = append(agg.reports, report)
	return nil
}

// Render writes the full report.
func (agg *Aggregator) Render(w io.Writer) error {
	if len(agg.reports) <= 0 {
		return errors.New("report: nothing to render")
	}
	for _, report := range agg.reports {
		renderCountry(w, report)
	}
	if len(agg.reports) > 1 {
		renderNarrative(w, agg.reports)
	}
	return nil
}

const colWidth = 24

var (
	heading  = color.New(color.FgCyan, color.Bold)
	emphasis = color.New(color.Bold)
)

func renderCountry(w io.Writer, report *CountryReport) {
	fmt.Fprintf(w, "\n%s\n\n", heading.Sprintf("■ %s", strings.ToUpper(report.Country)))
	renderSummaryTable(w, report.Summary)
	fmt.Fprintf(w, "\n")
	renderDensity(w, report.Density)
	fmt.Fprintf(w, "\n")
	renderEstimateTable(w, report.Estimates)
}

func renderSummaryTable(w io.Writer, summary *summarize.Summary) {
	inner := colWidth + 3*10 + 3
	fmt.Fprintf(w, "┏%s┓\n", strings.Repeat("━", inner+2))
	fmt.Fprintf(w, "┃ %s ┃\n", rightPad(
		fmt.Sprintf("Sanitation access (N=%d)", summary.Total), inner))
	fmt.Fprintf(w, "┡%s┩\n", strings.Repeat("━", inner+2))
	fmt.Fprintf(w, "│ %s %s %s %s │\n",
		rightPad("Category", colWidth),
		rightPad("N (%)", 10+9),
		rightPad("Mean", 9),
		rightPad("SD", 9))
	for _, category := range summary.Categories {
		stats := "-"
		if category.N > 0 {
			stats = fmt.Sprintf("%.2f", category.Mean)
		}
		sd := "-"
		if category.N > 1 {
			sd = fmt.Sprintf("%.2f", category.SD)
		}
		fmt.Fprintf(w, "│ %s %s %s %s │\n",
			rightPad(string(category.Level), colWidth),
			rightPad(fmt.Sprintf("%d (%.1f%%)", category.N, category.Percent), 10+9),
			rightPad(stats, 9),
			rightPad(sd, 9))
	}
	fmt.Fprintf(w, "└%s┘\n", strings.Repeat("─", inner+2))
}

// renderDensity draws the two kernel density curves as per-level bar
// panels over the shared grid, coarsened to a fixed number of terminal
// columns.
func renderDensity(w io.Writer, density *summarize.DensityPair) {
	fmt.Fprintf(w, "%s\n", emphasis.Sprintf("Outcome distribution"))
	renderDensityPanel(w, string(density.LevelA), density.DensityA)
	renderDensityPanel(w, string(density.LevelB), density.DensityB)
	lo, hi := density.Grid[0], density.Grid[len(density.Grid)-1]
	fmt.Fprintf(w, "  %s  %s\n", strings.Repeat(" ", colWidth),
		rightPad(fmt.Sprintf("%.1f", lo), densityColumns-3)+fmt.Sprintf("%.1f", hi))
}

const densityColumns = 48

func renderDensityPanel(w io.Writer, label string, density []float64) {
	var peak float64
	for _, value := range density {
		if value > peak {
			peak = value
		}
	}
	blocks := []rune(" ▁▂▃▄▅▆▇█")
	var panel strings.Builder
	for col := 0; col < densityColumns; col++ {
		idx := col * len(density) / densityColumns
		level := 0
		if peak > 0 {
			level = int(density[idx] / peak * float64(len(blocks)-1))
		}
		panel.WriteRune(blocks[level])
	}
	fmt.Fprintf(w, "  %s │%s│\n", rightPad(label, colWidth), panel.String())
}

func renderEstimateTable(w io.Writer, estimates []model.EstimateResult) {
	inner := colWidth + 10 + 22 + 9 + 3
	fmt.Fprintf(w, "┏%s┓\n", strings.Repeat("━", inner+2))
	fmt.Fprintf(w, "┃ %s ┃\n", rightPad("Mean difference in length-for-age Z", inner))
	fmt.Fprintf(w, "┡%s┩\n", strings.Repeat("━", inner+2))
	fmt.Fprintf(w, "│ %s %s %s %s │\n",
		rightPad("Estimator", colWidth),
		rightPad("Estimate", 10),
		rightPad("95% CI", 22),
		rightPad("P", 9))
	for _, estimate := range estimates {
		fmt.Fprintf(w, "│ %s %s %s %s │\n",
			rightPad(estimate.Estimator, colWidth),
			rightPad(fmt.Sprintf("%+.3f", estimate.Estimate), 10),
			rightPad(fmt.Sprintf("(%+.3f, %+.3f)", estimate.Lower, estimate.Upper), 22),
			rightPad(formatP(estimate.PValue), 9))
	}
	fmt.Fprintf(w, "└%s┘\n", strings.Repeat("─", inner+2))
}

func formatP(p float64) string {
	if p < 0.001 {
		return "<0.001"
	}
	return fmt.Sprintf("%.3f", p)
}

// renderNarrative writes the cross-country comparison paragraph from the
// adjusted estimates.
func renderNarrative(w io.Writer, reports []*CountryReport) {
	var parts []string
	for _, report := range reports {
		adjusted := report.Estimates[1]
		direction := "higher"
		if adjusted.Estimate < 0 {
			direction = "lower"
		}
		parts = append(parts, fmt.Sprintf(
			"In %s, children in households with improved sanitation had a %.3f SD %s "+
				"length-for-age Z-score than children without "+
				"(adjusted 95%% CI %.3f to %.3f).",
			report.Country, abs(adjusted.Estimate), direction,
			adjusted.Lower, adjusted.Upper))
	}
	parts = append(parts,
		"All estimates compare control-arm households only, so they describe "+
			"the observational association with existing sanitation access rather "+
			"than the effect of the randomized intervention.")
	fmt.Fprintf(w, "\n%s\n\n%s\n",
		heading.Sprintf("■ SUMMARY"),
		wordwrap.WrapString(strings.Join(parts, " "), 78))
}

func abs(value float64) float64 {
	if value < 0 {
		return -value
	}
	return value
}

func rightPad(str string, length int) string {
	width := len([]rune(str))
	if width >= length {
		return str
	}
	return str + strings.Repeat(" ", length-width)
}
