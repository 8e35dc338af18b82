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
	"lpcustody/internal/model"
	"lpcustody/internal/oracle"
)

type breakdownOutput struct {
	PositionID uint64 `json:"position_id"`
	Twap       bool   `json:"twap"`
	Token0     string `json:"token0"`
	Token1     string `json:"token1"`
	Fee0       string `json:"fee0"`
	Fee1       string `json:"fee1"`
	Liquidity0 string `json:"liquidity0"`
	Liquidity1 string `json:"liquidity1"`
	Liquidity  string `json:"liquidity"`
}

func runBreakdown(cmd *cobra.Command, _ []string) error {
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
	manager, err := config.ParseAddress(cfg.PositionManager)
	if err != nil {
		return fmt.Errorf("position-manager: %w", err)
	}
	factory, err := config.ParseAddress(cfg.Factory)
	if err != nil {
		return fmt.Errorf("factory: %w", err)
	}
	quote, err := config.ParseAddress(cfg.Quote)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	assets, err := config.ParseAddresses(cfg.Assets)
	if err != nil {
		return err
	}
	pools, err := config.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	positionID, _ := cmd.Flags().GetUint64("position-id")
	if positionID == 0 {
		return fmt.Errorf("position-id is required")
	}
	twap, _ := cmd.Flags().GetBool("twap")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	poolClient := dex.NewPoolClient(chainClient)
	positionClient := dex.NewPositionClient(chainClient, manager, factory)

	admin := manager // the CLI only reads; any admin identity works for setup
	o := oracle.New(oracle.Config{
		Admin:             admin,
		Quote:             quote,
		TwapWindow:        cfg.TwapWindow,
		CanAdminOverwrite: true,
	}, poolClient, positionClient, logger)
	if err := o.AddAssets(admin, assets, pools); err != nil {
		return fmt.Errorf("configure assets: %w", err)
	}

	logger.Info("breakdown start",
		zap.Uint64("position_id", positionID),
		zap.Bool("twap", twap),
		zap.Uint32("twap_window", cfg.TwapWindow),
	)

	var bd model.Breakdown
	if twap {
		bd, err = o.BreakdownTWAP(ctx, positionID)
	} else {
		bd, err = o.BreakdownCurrent(ctx, positionID)
	}
	if err != nil {
		return err
	}

	out := breakdownOutput{
		PositionID: positionID,
		Twap:       twap,
		Token0:     bd.Token0.Hex(),
		Token1:     bd.Token1.Hex(),
		Fee0:       bd.Fee0.String(),
		Fee1:       bd.Fee1.String(),
		Liquidity0: bd.Liquidity0.String(),
		Liquidity1: bd.Liquidity1.String(),
		Liquidity:  bd.Liquidity.String(),
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
