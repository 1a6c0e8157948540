package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quotactl",
		Short:         "Quota guardian command-line tool",
		Long:          `Evaluates tenant quotas and consolidates dashboards offline, and manages the database schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file (default ./config.yaml or ./config/config.yaml)")

	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newConsolidateCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
