// Package cli implements the sanlaz command line interface.
package cli

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	colorable "github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the root [cobra.Command].
func NewRootCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "sanlaz",
		Short: "Sanitation access and child linear growth in the WASH Benefits control arms",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetHandler(cli.New(colorable.NewColorableStderr()))
			log.SetLevel(log.InfoLevel)
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "emit debug logs")
	cmd.AddCommand(runSubcommand())
	cmd.AddCommand(showSubcommand())
	cmd.AddCommand(versionSubcommand())
	return cmd
}

// defaultDatabasePath returns the default results database path, creating
// the containing directory if needed.
func defaultDatabasePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".sanlaz")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "results.sqlite3"), nil
}
