package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/shift-backfill/internal/observability"
	"github.com/jonathan/shift-backfill/internal/types"
)

var cancelBy string

var cancelCmd = &cobra.Command{
	Use:   "cancel <shift-id>",
	Short: "Cancel a shift and start its backfill",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	cancelCmd.Flags().StringVar(&cancelBy, "by", "", "Who cancelled the shift (recorded in the audit log)")
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	shiftID := args[0]
	if err := a.canceller.Cancel(ctx, shiftID, cancelBy); err != nil {
		return err
	}
	if a.bus != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "shift %s cancelled; backfill queued\n", shiftID)
		return nil
	}

	run, err := a.store.FindActiveRun(ctx, shiftID)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "shift %s cancelled; no running backfill\n", shiftID)
		return nil
	}
	attempts := attemptsOrEmpty(a, cmd, run.ID)
	if pretty {
		observability.NewPrinter(cmd.OutOrStdout()).PrintRun(run, attempts)
		return nil
	}
	return printJSON(cmd, map[string]any{"run": run, "attempts": attempts})
}

func attemptsOrEmpty(a *app, cmd *cobra.Command, runID string) []types.BackfillAttempt {
	attempts, err := a.store.ListAttempts(cmdContext(cmd), runID)
	if err != nil || attempts == nil {
		return []types.BackfillAttempt{}
	}
	return attempts
}
