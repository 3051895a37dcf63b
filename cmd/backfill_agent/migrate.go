package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/shift-backfill/internal/config"
	"github.com/jonathan/shift-backfill/internal/db"
	"github.com/jonathan/shift-backfill/internal/demo"
)

var migrateSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Create the backfill tables, indexes and the candidate search function. The schema is idempotent.`,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "Also load the demo client, workers and shift")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if memoryMode {
		return errors.New("migrate needs Postgres; --memory is not supported")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	ctx := cmdContext(cmd)
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema applied")

	if migrateSeed {
		if err := database.SeedDemo(ctx, demo.Data(time.Now().UTC())); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "demo data seeded (shift %s)\n", demo.ShiftID)
	}
	return nil
}
