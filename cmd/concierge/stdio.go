package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	concierge "github.com/concierge-sh/concierge"
	"github.com/concierge-sh/concierge/internal/adapters/stdio"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Run one session over stdin/stdout",
	Long: `Runs the engine as a subprocess transport: the parent process writes one
JSON action per line on stdin and reads one JSON response object per line on
stdout. Intended for agent harnesses; humans want the repl command instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := buildLogger(cmd)

		wf, err := buildWorkflow(cmd)
		if err != nil {
			return fmt.Errorf("failed to load workflow: %w", err)
		}

		store, cleanup, err := buildStore(cmd.Context(), cmd)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer cleanup()

		opts := []concierge.Option{concierge.WithLogger(logger)}
		if store != nil {
			opts = append(opts, concierge.WithStore(store))
		}
		engine, err := concierge.New(wf, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize engine: %w", err)
		}

		transport := stdio.New(engine, os.Stdin, os.Stdout, stdio.WithLogger(logger))
		return transport.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}
