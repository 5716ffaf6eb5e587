package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/auth"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/secrets"
)

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <agent-id>",
		Short: "Issue a bearer token for an agent",
		Long: `Token mints a signed bearer token for the given agent using the token
secret from the environment. The token is printed to stdout so it can be
handed to the agent's submission client.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm := auth.NewTokenManager(secrets.NewEnvStore())
			token, err := tm.Issue(cmd.Context(), args[0], ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "%s token for %s expires in %s\n",
				color.New(color.FgGreen).Sprint("✓"), args[0], ttl)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
