package cli

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/washb/sanlaz/internal/must"
	"github.com/washb/sanlaz/internal/results"
)

// showSubcommand returns the show [cobra.Command].
func showSubcommand() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "List stored runs or print one run's estimates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dbPath
			if path == "" {
				var err error
				path, err = defaultDatabasePath()
				if err != nil {
					return errors.Wrap(err, "resolving database path")
				}
			}
			store, err := results.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()
			if len(args) <= 0 {
				return listRuns(store)
			}
			return showRun(store, args[0])
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "results database path (default ~/.sanlaz/results.sqlite3)")
	return cmd
}

func listRuns(store *results.Store) error {
	runs, err := store.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) <= 0 {
		must.Fprintf(os.Stdout, "no stored runs\n")
		return nil
	}
	for _, run := range runs {
		must.Fprintf(os.Stdout, "%s  %s  %-12s  n=%d\n",
			run.ID, run.StartTime.Format(time.RFC3339), run.Country, run.CohortSize)
	}
	return nil
}

func showRun(store *results.Store, runID string) error {
	estimates, err := store.EstimatesFor(runID)
	if err != nil {
		return err
	}
	if len(estimates) <= 0 {
		return errors.Errorf("no estimates stored for run %s", runID)
	}
	for _, estimate := range estimates {
		must.Fprintf(os.Stdout, "%-16s %+.3f (%+.3f, %+.3f) p=%.3f\n",
			estimate.Estimator, estimate.Estimate,
			estimate.Lower, estimate.Upper, estimate.PValue)
	}
	return nil
}
