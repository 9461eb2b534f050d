package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/washb/sanlaz/internal/version"
)

// versionSubcommand returns the version [cobra.Command].
func versionSubcommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sanlaz version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stdout, "sanlaz %s\n", version.Version)
		},
	}
}
