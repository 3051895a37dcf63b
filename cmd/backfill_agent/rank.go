package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/backfill"
	"github.com/jonathan/shift-backfill/internal/observability"
	"github.com/jonathan/shift-backfill/internal/ranking"
)

var rankRadius float64

var rankCmd = &cobra.Command{
	Use:   "rank <shift-id>",
	Short: "Show how candidates for a shift would be ranked, without contacting anyone",
	Args:  cobra.ExactArgs(1),
	RunE:  runRank,
}

func init() {
	rankCmd.Flags().Float64Var(&rankRadius, "radius", 0, "Search radius in miles (overrides BACKFILL_RADIUS_MILES)")
	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	vacancy, err := backfill.NewAnalyzer(a.store).Analyze(ctx, args[0])
	if err != nil {
		return err
	}
	radius := a.cfg.Backfill.RadiusMiles
	if rankRadius > 0 {
		radius = rankRadius
	}
	candidates, err := a.store.FetchCandidates(ctx, args[0], radius)
	if err != nil {
		return err
	}

	// Dry runs stay out of the audit log.
	engine := ranking.NewEngine(a.oracle, audit.Nop{}, a.log, nil)
	result := engine.Rank(ctx, vacancy, candidates)

	if pretty {
		printer := observability.NewPrinter(cmd.OutOrStdout())
		printer.PrintVacancy(&vacancy)
		printer.PrintRanking(&result, candidates)
		return nil
	}
	return printJSON(cmd, map[string]any{
		"vacancy":      vacancy,
		"radius_miles": radius,
		"candidates":   candidates,
		"ranking":      result,
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
