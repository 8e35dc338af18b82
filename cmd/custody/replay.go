package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpcustody/internal/config"
	"lpcustody/internal/model"
	"lpcustody/internal/storage/postgres"
)

const replayStateName = "replay"

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Events == "" {
		return fmt.Errorf("events path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	lastSeq, _, err := store.LoadState(ctx, replayStateName)
	if err != nil {
		return fmt.Errorf("load replay cursor: %w", err)
	}

	file, err := os.Open(cfg.Events)
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	defer file.Close()

	logger.Info("replay start",
		zap.String("events", cfg.Events),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("cursor", lastSeq),
	)

	flush := func(batch []model.Event) error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.Record(ctx, batch...); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		last := batch[len(batch)-1].Seq
		if err := store.SaveState(ctx, replayStateName, last); err != nil {
			return fmt.Errorf("save replay cursor: %w", err)
		}
		return nil
	}

	var (
		batch    []model.Event
		replayed int
		skipped  int
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event model.Event
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if event.Seq <= lastSeq {
			skipped++
			continue
		}

		batch = append(batch, event)
		if len(batch) >= cfg.BatchSize {
			if err := flush(batch); err != nil {
				return err
			}
			replayed += len(batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if err := flush(batch); err != nil {
		return err
	}
	replayed += len(batch)

	logger.Info("replay done",
		zap.Int("replayed", replayed),
		zap.Int("skipped", skipped),
	)
	return nil
}
