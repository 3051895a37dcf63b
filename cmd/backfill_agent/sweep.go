package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/shift-backfill/internal/backfill"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Escalate every running run past its deadline, once",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmdContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sweeper := backfill.NewSweeper(a.store, a.controller, a.orch, a.cfg.Backfill.SweepInterval, a.log)
	n, err := sweeper.SweepOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "escalated %d run(s)\n", n)
	return nil
}
