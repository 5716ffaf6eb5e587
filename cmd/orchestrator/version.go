package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/api"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the orchestrator version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("orchestrator %s\n", color.New(color.FgCyan).Sprint(api.Version))
		},
	}
}
