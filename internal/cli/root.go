// Package cli implements the jobmetrics command line.
package cli

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobmetrics",
		Short:         "Prometheus metrics for background job lifecycle events",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(
		newServeCmd(),
		newReplayCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "jobmetrics %s\n", Version)
			},
		},
	)
	return root
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()
	return newRootCmd().ExecuteContext(ctx)
}
