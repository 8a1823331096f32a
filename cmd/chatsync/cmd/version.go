package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.1.0" // Set at build time with -ldflags

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of chatsync",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chatsync v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
