package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leozw/quota-guardian/internal/kpi"
)

func newConsolidateCmd() *cobra.Command {
	var (
		file    string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Consolidate KPI sources from a JSON file into a dashboard",
		Long: `Reads a map of source name to bundle (stats, health, metrics, kpis, dashboard, quotas)
and prints the consolidated dashboard using the KPI section of the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			var raw map[string]json.RawMessage
			if err := json.Unmarshal(data, &raw); err != nil {
				return fmt.Errorf("failed to decode sources: %w", err)
			}

			d := kpi.Consolidate(kpi.ParseSources(raw), cfg.KPI)
			for _, n := range d.Notices {
				fmt.Fprintf(cmd.ErrOrStderr(), "notice: %s %s %s %s\n", n.Kind, n.Source, n.Metric, n.Detail)
			}

			if compact {
				return writeJSON(cmd, d.Compact)
			}
			return writeJSON(cmd, d)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "sources file, - for stdin")
	cmd.Flags().BoolVar(&compact, "compact", false, "print only the compact KPI list")
	return cmd
}
