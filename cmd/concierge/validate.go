package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/concierge-sh/concierge/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a workflow definition",
	Long: `Parses and compiles the definition named by --workflow, reporting structural
errors (dangling transitions, unknown propagation modes, bad argument types)
and lint warnings (unreachable stages, prerequisites no transition can
deliver).`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("workflow")
		if path == "" {
			fmt.Println("Pass --workflow with the definition file to validate.")
			os.Exit(1)
		}

		wf, err := buildWorkflow(cmd)
		if err != nil {
			fmt.Printf("Invalid: %v\n", err)
			os.Exit(1)
		}

		issues := validator.Lint(wf)
		for _, issue := range issues {
			fmt.Printf("Warning: %s\n", issue)
		}

		strict, _ := cmd.Flags().GetBool("strict")
		if strict && len(issues) > 0 {
			fmt.Printf("Invalid: %d lint warnings with --strict\n", len(issues))
			os.Exit(1)
		}

		fmt.Printf("OK: workflow %q with %d stages %v\n", wf.Name, len(wf.StageNames()), wf.StageNames())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat lint warnings as errors")
}
