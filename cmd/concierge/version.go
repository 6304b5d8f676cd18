package main

import (
	"fmt"

	"github.com/spf13/cobra"

	concierge "github.com/concierge-sh/concierge"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("concierge v%s\n", concierge.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
