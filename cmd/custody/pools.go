package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpcustody/internal/chain"
	"lpcustody/internal/config"
	"lpcustody/internal/dex"
)

type poolOutput struct {
	Pool         string `json:"pool"`
	Token0       string `json:"token0"`
	Token0Symbol string `json:"token0_symbol,omitempty"`
	Token1       string `json:"token1"`
	Token1Symbol string `json:"token1_symbol,omitempty"`
	Fee          uint32 `json:"fee"`
	TickSpacing  int32  `json:"tick_spacing"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}

func runPools(cmd *cobra.Command, _ []string) error {
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

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	pools, err := config.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("pool list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	poolClient := dex.NewPoolClient(chainClient)

	out := make([]poolOutput, 0, len(pools))
	for _, pool := range pools {
		meta, err := poolClient.Meta(ctx, pool)
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.Hex(), err)
		}
		state, err := poolClient.State(ctx, pool)
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.Hex(), err)
		}

		entry := poolOutput{
			Pool:         pool.Hex(),
			Token0:       meta.Token0.Hex(),
			Token1:       meta.Token1.Hex(),
			Fee:          meta.Fee,
			TickSpacing:  meta.TickSpacing,
			SqrtPriceX96: state.SqrtPriceX96.String(),
			Tick:         state.Tick,
		}
		if tokenMeta, err := dex.FetchTokenMeta(ctx, chainClient, meta.Token0); err == nil {
			entry.Token0Symbol = tokenMeta.Symbol
		} else {
			logger.Debug("token0 metadata fetch failed", zap.String("token", meta.Token0.Hex()), zap.Error(err))
		}
		if tokenMeta, err := dex.FetchTokenMeta(ctx, chainClient, meta.Token1); err == nil {
			entry.Token1Symbol = tokenMeta.Symbol
		} else {
			logger.Debug("token1 metadata fetch failed", zap.String("token", meta.Token1.Hex()), zap.Error(err))
		}
		out = append(out, entry)
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
