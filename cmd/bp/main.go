package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "bullpen.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bp",
		Short: "Bullpen: specialist agents for coaching conversations",
		Long:  "Bullpen runs user-defined specialist agents, resolves approved dispatches and evolves agent prompts from feedback.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newExecutionCmd())
	cmd.AddCommand(newFeedbackCmd())
	cmd.AddCommand(newUsageCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bp %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
