package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/shift-backfill/internal/types"
)

var respondCmd = &cobra.Command{
	Use:   "respond <attempt-id> <accepted|declined|no_answer>",
	Short: "Record a worker's answer to an outreach attempt",
	Args:  cobra.ExactArgs(2),
	RunE:  runRespond,
}

func init() {
	rootCmd.AddCommand(respondCmd)
}

func runRespond(cmd *cobra.Command, args []string) error {
	sig := types.BackfillResponse{
		AttemptID: args[0],
		Decision:  types.Decision(args[1]),
		Raw:       []byte(`{"source":"cli"}`),
	}
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}

	ctx := cmdContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.bus != nil {
		if err := a.bus.EmitResponse(ctx, sig); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "response for attempt %s queued\n", sig.AttemptID)
		return nil
	}

	result, err := a.orch.HandleResponse(ctx, sig)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}
