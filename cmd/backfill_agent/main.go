// Package main provides the entry point for the shift backfill agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	memoryMode bool
	pretty     bool
)

var rootCmd = &cobra.Command{
	Use:   "backfill_agent",
	Short: "Shift backfill orchestration engine",
	Long: `backfill_agent finds a replacement caregiver when a shift is cancelled: it ranks nearby
eligible workers, contacts the best one by SMS or voice, applies their answer and escalates
to a manager when nobody accepts before the deadline.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().BoolVar(&memoryMode, "memory", false, "Use the in-memory store seeded with demo data instead of Postgres")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Print boxed human-readable summaries instead of JSON")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
