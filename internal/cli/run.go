package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/washb/sanlaz/internal/pipeline"
	"github.com/washb/sanlaz/internal/report"
	"github.com/washb/sanlaz/internal/results"
)

// runSubcommand returns the run [cobra.Command].
func runSubcommand() *cobra.Command {
	var (
		datadir string
		dbPath  string
		noStore bool
	)
	cmd := &cobra.Command{
		Use:   "run [country...]",
		Short: "Run the analysis pipeline and render the report",
		Long: "Runs the full analysis for the named countries (default: all) " +
			"over the raw trial files in the data directory, renders the " +
			"comparative report, and stores the estimates.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := selectCountries(args)
			if err != nil {
				return err
			}
			return runPipelines(specs, datadir, dbPath, noStore)
		},
	}
	cmd.Flags().StringVar(&datadir, "datadir", "./data", "directory holding the raw trial files")
	cmd.Flags().StringVar(&dbPath, "db", "", "results database path (default ~/.sanlaz/results.sqlite3)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not persist estimates")
	return cmd
}

// selectCountries resolves the country arguments against the registry,
// defaulting to every country in presentation order.
func selectCountries(args []string) ([]*pipeline.CountrySpec, error) {
	if len(args) <= 0 {
		args = pipeline.CountryOrder
	}
	var specs []*pipeline.CountrySpec
	for _, arg := range args {
		spec := pipeline.Countries[strings.ToLower(arg)]
		if spec == nil {
			return nil, errors.Errorf(
				"unknown country %q (have: %s)",
				arg, strings.Join(pipeline.CountryOrder, ", "),
			)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func runPipelines(specs []*pipeline.CountrySpec, datadir, dbPath string, noStore bool) error {
	var store *results.Store
	if !noStore {
		path := dbPath
		if path == "" {
			var err error
			path, err = defaultDatabasePath()
			if err != nil {
				return errors.Wrap(err, "resolving database path")
			}
		}
		var err error
		store, err = results.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	aggregator := report.NewAggregator()
	for _, spec := range specs {
		log.Infof("running %s pipeline", spec.Name)
		bar := crossValidationBar(spec.Name)
		outcome, err := pipeline.Run(spec, datadir, log.Log, func(fold, total int) {
			bar.Add(1)
		})
		bar.Finish()
		if err != nil {
			return err
		}
		if err := aggregator.Add(&report.CountryReport{
			Country:   outcome.Cohort.Country,
			Summary:   outcome.Summary,
			Density:   outcome.Density,
			Estimates: outcome.Estimates.Ordered(),
		}); err != nil {
			return err
		}
		if store != nil {
			runID, err := store.SaveRun(
				outcome.Cohort.Country, outcome.Cohort.Size(),
				outcome.Estimates.Ordered(),
			)
			if err != nil {
				return err
			}
			log.Infof("stored run %s", runID)
		}
	}
	return aggregator.Render(os.Stdout)
}

// crossValidationBar renders fold progress for the two nuisance fits of
// the double-robust estimator (ten folds each).
func crossValidationBar(country string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		20,
		progressbar.OptionSetDescription(country+": cross-validation"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetWriter(os.Stderr),
	)
}
