package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/leozw/quota-guardian/internal/db"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	run := func(name string, apply func(*cobra.Command) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Apply %s migrations", name),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return apply(cmd)
			},
		}
	}

	cmd.AddCommand(run("up", func(cmd *cobra.Command) error {
		return withDatabase(cmd, db.MigrateUp)
	}))
	cmd.AddCommand(run("down", func(cmd *cobra.Command) error {
		return withDatabase(cmd, db.MigrateDown)
	}))
	return cmd
}

func withDatabase(cmd *cobra.Command, fn func(*sqlx.DB) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	database, err := db.NewConnection(cfg.Database.URL, 2, 1)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := fn(database); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}
