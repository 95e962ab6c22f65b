package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wa-gateway/internal/infrastructure/config"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/database"
	"github.com/nerrad567/wa-gateway/migrations"
)

// newMigrateCommand manages the gateway database schema without starting
// the gateway.
func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), func(db *database.DB) error {
					return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), db)
				})
			},
		},
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), func(db *database.DB) error {
					if err := db.Migrate(cmd.Context(), migrations.Source()); err != nil {
						return fmt.Errorf("running migrations: %w", err)
					}
					return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), db)
				})
			},
		},
		newMigrateDownCommand(),
	)
	return cmd
}

func newMigrateDownCommand() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return withDatabase(cmd.Context(), func(db *database.DB) error {
				ctx := cmd.Context()
				applied, _, err := db.GetMigrationStatus(ctx, migrations.Source())
				if err != nil {
					return fmt.Errorf("reading migration status: %w", err)
				}
				n := min(steps, len(applied))
				for i := range n {
					rec := applied[len(applied)-1-i]
					if err := db.MigrateDown(ctx, migrations.Source()); err != nil {
						return fmt.Errorf("rolling back %s: %w", rec.Version, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", rec.Version)
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(ctx context.Context, fn func(db *database.DB) error) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly command, nothing to flush

	return fn(db)
}

func printMigrationStatus(ctx context.Context, w io.Writer, db *database.DB) error {
	applied, pending, err := db.GetMigrationStatus(ctx, migrations.Source())
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, rec := range applied {
		fmt.Fprintf(w, "applied  %s  %s\n", rec.Version, rec.AppliedAt.UTC().Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}
