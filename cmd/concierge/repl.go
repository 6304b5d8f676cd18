package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	concierge "github.com/concierge-sh/concierge"
	"github.com/concierge-sh/concierge/internal/presentation/tui"
)

const replHelp = `
# Concierge REPL

Type one JSON action per line:

- ` + "`" + `{"action": "handshake"}` + "`" + ` re-renders the current stage context
- ` + "`" + `{"action": "operation_call", "tool": "<name>", "args": {...}}` + "`" + `
- ` + "`" + `{"action": "transition", "stage": "<name>"}` + "`" + `
- ` + "`" + `{"action": "data_supply", "data": {...}}` + "`" + `

Commands: **help**, **exit**
`

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Drive a session interactively",
	Long:  `Starts an in-process session and lets you play the agent: type raw JSON actions and read the rendered continuation prompts.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := buildLogger(cmd)

		wf, err := buildWorkflow(cmd)
		if err != nil {
			fmt.Printf("Error loading workflow: %v\n", err)
			os.Exit(1)
		}

		engine, err := concierge.New(wf, concierge.WithLogger(logger))
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		ctx := cmd.Context()
		sessionID, greeting, err := engine.CreateSession(ctx)
		if err != nil {
			fmt.Printf("Error creating session: %v\n", err)
			os.Exit(1)
		}

		render := tui.NewRenderer()
		tui.PrintBanner()
		if help, err := render(replHelp); err == nil {
			fmt.Print(help)
		}
		fmt.Printf("Session: %s\n\n%s\n", sessionID, greeting)

		p := termenv.ColorProfile()
		prompt := termenv.String("> ").Foreground(p.Color("#818cf8")).String()

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(prompt)
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())

			switch line {
			case "":
				continue
			case "help":
				if help, err := render(replHelp); err == nil {
					fmt.Print(help)
				}
				continue
			case "exit", "quit":
				bye, err := engine.EndSession(ctx, sessionID)
				if err != nil {
					fmt.Printf("Error ending session: %v\n", err)
					os.Exit(1)
				}
				fmt.Println(bye)
				return
			}

			reply, err := engine.Handle(ctx, sessionID, []byte(line))
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println(reply)
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
