package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clientdesk/orchestrator/cmd/orchestrator/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Workflow and campaign orchestration engine",
		Long: `The orchestrator executes automated workflows triggered by business
events, drives long-running outbound call campaigns, and keeps local
entities synchronized with CRM providers.`,
	}

	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Path to config file")
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.SeedCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
