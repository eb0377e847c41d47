package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolscope/internal/config"
	"poolscope/internal/feed"
	"poolscope/internal/state"
	"poolscope/internal/storage"
	"poolscope/internal/storage/postgres"
	"poolscope/internal/valuation"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entityStore := state.NewMemoryStore()

	var pgStore *postgres.Store
	var stateStore feed.StateStore
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()

		if recomputeFrom == 0 {
			if err := seedFromPostgres(ctx, pgStore, entityStore); err != nil {
				return fmt.Errorf("seed state: %w", err)
			}
		}
		stateStore = &feed.DBStateStore{Store: pgStore, Name: cfg.StateName}
	} else if cfg.StateFile != "" {
		stateStore = &feed.FileStateStore{Path: cfg.StateFile}
	}

	oracle := valuation.NewOracle(valuation.Config{
		WrappedNative:     cfg.WrappedNative,
		USDAnchorPool:     cfg.USDAnchorPool,
		USDStableIsToken0: cfg.USDStableIsToken0,
	}, entityStore)

	engine := state.NewEngine(entityStore, oracle, nil, logger)

	replayer := feed.NewReplayer(feed.Config{
		RecomputeFrom: recomputeFrom,
		SaveEvery:     cfg.SaveEvery,
		StateStore:    stateStore,
	}, engine, logger)

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.Bool("postgres", pgStore != nil),
		zap.String("snapshot_out", cfg.SnapshotOut),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	summary, err := replayer.Run(ctx, cfg.In)
	if err != nil {
		return err
	}

	if pgStore != nil {
		if err := persistEntities(ctx, pgStore, entityStore); err != nil {
			return fmt.Errorf("persist entities: %w", err)
		}
	}

	if cfg.SnapshotOut != "" {
		snapshot := storage.Snapshot{
			Pools:  entityStore.Pools(),
			Tokens: entityStore.Tokens(),
			Ticks:  entityStore.Ticks(),
		}
		if bundle, ok := entityStore.Bundle(); ok {
			snapshot.Bundle = &bundle
		}
		if err := storage.WriteSnapshot(cfg.SnapshotOut, snapshot); err != nil {
			return err
		}
	}

	stats := engine.Stats()
	logger.Info("replay finished",
		zap.Int("events", summary.Total),
		zap.Uint64("applied", stats.Applied),
		zap.Uint64("rejected", stats.Rejected),
		zap.Uint64("skipped", stats.TotalSkipped()),
		zap.Int("pools", len(entityStore.Pools())),
		zap.Int("tokens", len(entityStore.Tokens())),
		zap.Int("ticks", len(entityStore.Ticks())),
	)

	return nil
}

func seedFromPostgres(ctx context.Context, pg *postgres.Store, store *state.MemoryStore) error {
	pools, err := pg.LoadPools(ctx)
	if err != nil {
		return err
	}
	for _, pool := range pools {
		store.SavePool(pool)
	}

	tokens, err := pg.LoadTokens(ctx)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		store.SaveToken(token)
	}

	ticks, err := pg.LoadTicks(ctx)
	if err != nil {
		return err
	}
	for _, tick := range ticks {
		store.SaveTick(tick)
	}

	bundle, ok, err := pg.LoadBundle(ctx)
	if err != nil {
		return err
	}
	if ok {
		store.SaveBundle(bundle)
	}

	return nil
}

func persistEntities(ctx context.Context, pg *postgres.Store, store *state.MemoryStore) error {
	if err := pg.UpsertPools(ctx, store.Pools()); err != nil {
		return err
	}
	if err := pg.UpsertTokens(ctx, store.Tokens()); err != nil {
		return err
	}
	if err := pg.UpsertTicks(ctx, store.Ticks()); err != nil {
		return err
	}
	if bundle, ok := store.Bundle(); ok {
		if err := pg.UpsertBundle(ctx, bundle); err != nil {
			return err
		}
	}
	return nil
}
