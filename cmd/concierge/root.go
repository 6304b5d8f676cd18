package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Concierge drives tool-less LLM agents through staged workflows",
	Long: `Concierge models application flow as a directed graph of stages. An agent
issues small JSON actions; the server advances the session's state machine and
answers with a rendered prompt describing what the agent may legally do next.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("workflow", "", "Path to a workflow definition (YAML or JSON); the built-in demo workflow is used when empty")
	rootCmd.PersistentFlags().String("store", "memory", "Session store backend: memory, file, redis, or postgres")
	rootCmd.PersistentFlags().String("file-dir", "", "Session directory for --store=file (default .concierge/sessions)")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address for --store=redis")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "Postgres DSN for --store=postgres")
	rootCmd.PersistentFlags().String("encrypt-key", "", "Base64-encoded 32-byte key; encrypts stored state at rest when set")
	rootCmd.PersistentFlags().StringSlice("mask", nil, "Field name patterns whose values are masked before persistence (repeatable)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, or error")
}
