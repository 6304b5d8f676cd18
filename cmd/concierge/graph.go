package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/concierge-sh/concierge/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the workflow graph visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of the workflow's stages, transitions, propagation policies, and prerequisites.`,
	Run: func(cmd *cobra.Command, args []string) {
		wf, err := buildWorkflow(cmd)
		if err != nil {
			fmt.Printf("Error loading workflow: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(graph.GenerateMermaid(wf, nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
