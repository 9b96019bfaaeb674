package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version number",
	Long:              `Display the current version of the stockbot CLI.`,
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stockbot version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
