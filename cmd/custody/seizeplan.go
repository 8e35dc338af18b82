package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpcustody/internal/chain"
	"lpcustody/internal/config"
	"lpcustody/internal/dex"
	"lpcustody/internal/liquidate"
	"lpcustody/internal/oracle"
)

type seizePlanOutput struct {
	PositionID uint64 `json:"position_id"`
	Target     string `json:"target"`
	Fee0       string `json:"fee0"`
	Fee1       string `json:"fee1"`
	Liquidity  string `json:"liquidity"`
}

func runSeizePlan(cmd *cobra.Command, _ []string) error {
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
	targetRaw, _ := cmd.Flags().GetString("target")
	target, ok := new(big.Int).SetString(targetRaw, 10)
	if !ok || target.Sign() <= 0 {
		return fmt.Errorf("target must be a positive decimal amount")
	}

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

	calc := liquidate.New(o, logger)
	plan, err := calc.Seize(ctx, positionID, target)
	if err != nil {
		return err
	}

	logger.Info("seize plan computed",
		zap.Uint64("position_id", positionID),
		zap.String("target", target.String()),
	)

	out := seizePlanOutput{
		PositionID: positionID,
		Target:     target.String(),
		Fee0:       plan.Fee0.String(),
		Fee1:       plan.Fee1.String(),
		Liquidity:  plan.Liquidity.String(),
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
