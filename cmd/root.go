// Package cmd holds the signvault command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "signvault",
	Short: "Browse, filter and download finalized D4Sign documents",
	Long: `signvault lists finalized documents from a D4Sign account, filters them by
vault, name and signature date, packs selections into zip archives and keeps
track of what was already downloaded.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
