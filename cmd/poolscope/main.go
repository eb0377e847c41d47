package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolscope/internal/chain"
	"poolscope/internal/config"
	"poolscope/internal/dex"
	"poolscope/internal/ingest"
	"poolscope/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "poolscope",
		Short:        "Concentrated-liquidity pool state reconstruction",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch factory and pool logs into a JSONL file",
		RunE:  runFetch,
	}

	fetchCmd.Flags().String("rpc", "", "chain RPC URL")
	fetchCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	fetchCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	fetchCmd.Flags().StringSlice("address", nil, "factory and pool addresses (comma-separated)")
	fetchCmd.Flags().StringSlice("topic0", nil, "topic0 filters, defaults to the tracked event set")
	fetchCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	fetchCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	fetchCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	fetchCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	fetchCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	fetchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	fetchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(fetchCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "chain RPC URL for token metadata (optional)")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay typed events into reconstructed pool state",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input typed events JSONL")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN for persisted state (optional)")
	replayCmd.Flags().String("state-file", "", "local replay progress file (used when pg-dsn is empty)")
	replayCmd.Flags().String("state-name", "replay", "replay progress name in the database")
	replayCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	replayCmd.Flags().Int("save-every", 1000, "persist progress after this many applied events")
	replayCmd.Flags().String("snapshot-out", "./data/state_snapshot.json", "entity state snapshot path")
	replayCmd.Flags().String("wrapped-native", "", "wrapped native token address for valuation")
	replayCmd.Flags().String("usd-anchor-pool", "", "native/stable pool address anchoring the USD price")
	replayCmd.Flags().Bool("usd-stable-is-token0", false, "stablecoin is token0 in the anchor pool")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFetch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	addresses, err := ingest.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	topicInputs := cfg.Topic0
	if len(topicInputs) == 0 {
		topicInputs, err = trackedTopic0Set()
		if err != nil {
			return err
		}
	}
	topic0, err := ingest.ParseTopic0(topicInputs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sink := storage.NewJsonlStorage(cfg.Out)

	fetcher := ingest.NewFetcher(ingest.Config{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sink, logger)

	logger.Info("fetch start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return fetcher.Run(ctx)
}

// trackedTopic0Set collects the topic0 hashes of every event the pipeline
// understands, so the fetch filter matches exactly what decode can handle.
func trackedTopic0Set() ([]string, error) {
	factoryDecoder, err := dex.NewFactoryDecoder()
	if err != nil {
		return nil, err
	}
	poolDecoder, err := dex.NewV3PoolDecoder()
	if err != nil {
		return nil, err
	}
	return append(factoryDecoder.Topic0Set(), poolDecoder.Topic0Set()...), nil
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
