package cmd

import (
	"fmt"

	"github.com/chukul/webidctl/internal"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "webidctl version %s\n", internal.CurrentVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
