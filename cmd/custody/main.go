package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "custody",
		Short:        "Collateral position custody tooling",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	breakdownCmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Print a position's value breakdown",
		RunE:  runBreakdown,
	}

	breakdownCmd.Flags().String("rpc", "", "chain RPC URL")
	breakdownCmd.Flags().String("position-manager", "", "position manager address")
	breakdownCmd.Flags().String("factory", "", "pool factory address")
	breakdownCmd.Flags().String("quote", "", "quote asset address")
	breakdownCmd.Flags().Uint32("twap-window", 600, "TWAP window in seconds")
	breakdownCmd.Flags().StringSlice("asset", nil, "priced assets (comma-separated)")
	breakdownCmd.Flags().StringSlice("pool", nil, "reference pools, one per asset (comma-separated)")
	breakdownCmd.Flags().Uint64("position-id", 0, "position identifier")
	breakdownCmd.Flags().Bool("twap", false, "value at the TWAP price instead of spot")
	breakdownCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(breakdownCmd)

	seizePlanCmd := &cobra.Command{
		Use:   "seize-plan",
		Short: "Compute seize amounts for a recovery target",
		RunE:  runSeizePlan,
	}

	seizePlanCmd.Flags().String("rpc", "", "chain RPC URL")
	seizePlanCmd.Flags().String("position-manager", "", "position manager address")
	seizePlanCmd.Flags().String("factory", "", "pool factory address")
	seizePlanCmd.Flags().String("quote", "", "quote asset address")
	seizePlanCmd.Flags().Uint32("twap-window", 600, "TWAP window in seconds")
	seizePlanCmd.Flags().StringSlice("asset", nil, "priced assets (comma-separated)")
	seizePlanCmd.Flags().StringSlice("pool", nil, "reference pools, one per asset (comma-separated)")
	seizePlanCmd.Flags().Uint64("position-id", 0, "position identifier")
	seizePlanCmd.Flags().String("target", "", "recovery target in quote units")
	seizePlanCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(seizePlanCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "Print metadata for configured pools",
		RunE:  runPools,
	}

	poolsCmd.Flags().String("rpc", "", "chain RPC URL")
	poolsCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	poolsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(poolsCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL audit event file into Postgres",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("events", "./data/events.jsonl", "input audit events JSONL")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	replayCmd.Flags().Int("batch-size", 500, "batch size for DB writes")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
