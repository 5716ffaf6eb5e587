package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/api"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "orchestrator",
		Short:   "Wombat Track agent orchestration core",
		Version: api.Version,
		Long: `The orchestration core dispatches signed instructions from autonomous
agents to operation backends, routes messages between agents, and monitors
agent health. Every decision is recorded in the governance log.`,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
