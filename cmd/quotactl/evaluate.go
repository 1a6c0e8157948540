package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leozw/quota-guardian/internal/quota"
)

func newEvaluateCmd() *cobra.Command {
	var (
		file        string
		failOnError bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate tenant quotas from a JSON file",
		Long: `Reads {"tenants": [...]} (or a bare array of tenants), each with tenant_id, contract and
counters, and prints the evaluated quota or the error of every tenant.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			inputs, err := decodeTenants(data)
			if err != nil {
				return err
			}

			results := quota.EvaluateBatch(inputs)
			if err := writeJSON(cmd, results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			if failed > 0 && failOnError {
				return fmt.Errorf("%d of %d tenants failed evaluation", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "usage file, - for stdin")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any tenant fails")
	return cmd
}

func decodeTenants(data []byte) ([]quota.TenantInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var inputs []quota.TenantInput
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, fmt.Errorf("failed to decode tenants: %w", err)
		}
		return inputs, nil
	}

	var wrapped struct {
		Tenants []quota.TenantInput `json:"tenants"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode tenants: %w", err)
	}
	return wrapped.Tenants, nil
}
