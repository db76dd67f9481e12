// Package cmd implements harmonyctl, the operator CLI for the Harmony job
// service.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "harmonyctl",
	Short: "Administer the Harmony job service",
	Long: `harmonyctl manages API keys and inspects jobs directly against the
Harmony database. It reads the same environment variables as the server
(DATABASE_URL, REDIS_URL, HARMONY_URL_ROOT, AWS_DEFAULT_REGION).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
