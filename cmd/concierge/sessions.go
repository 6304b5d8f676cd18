package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/concierge-sh/concierge/pkg/ports"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored sessions",
	Long:  `Lists, inspects, and removes sessions persisted in the configured store. Requires --store=redis or --store=postgres.`,
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored session IDs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		store, cleanup := mustStore(cmd)
		defer cleanup()

		ids, err := store.List(ctx)
		if err != nil {
			fmt.Printf("Error listing sessions: %v\n", err)
			os.Exit(1)
		}
		if len(ids) == 0 {
			fmt.Println("No stored sessions.")
			return
		}
		for _, id := range ids {
			workflow, stage, err := store.CurrentStage(ctx, id)
			if err != nil {
				fmt.Printf("%s\t(unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("%s\t%s\t%s\n", id, workflow, stage)
		}
	},
}

var sessionsInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print a session's snapshot history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		store, cleanup := mustStore(cmd)
		defer cleanup()

		snapshots, err := store.History(ctx, args[0])
		if err != nil {
			fmt.Printf("Error reading session: %v\n", err)
			os.Exit(1)
		}
		out, err := json.MarshalIndent(snapshots, "", "  ")
		if err != nil {
			fmt.Printf("Error encoding history: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Remove a stored session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		store, cleanup := mustStore(cmd)
		defer cleanup()

		removed, err := store.Delete(ctx, args[0])
		if err != nil {
			fmt.Printf("Error deleting session: %v\n", err)
			os.Exit(1)
		}
		if !removed {
			fmt.Printf("Session %q not found.\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("Session %q removed.\n", args[0])
	},
}

func mustStore(cmd *cobra.Command) (ports.StateStore, func()) {
	store, cleanup, err := buildStore(cmd.Context(), cmd)
	if err != nil {
		fmt.Printf("Error initializing store: %v\n", err)
		os.Exit(1)
	}
	if store == nil {
		fmt.Println("The sessions command needs a durable store; pass --store=redis or --store=postgres.")
		os.Exit(1)
	}
	return store, cleanup
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsLsCmd)
	sessionsCmd.AddCommand(sessionsInspectCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
}
