package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpcustody/internal/model"
)

// SeizeAssets removes collateral from a borrower's custodied position and
// hands it to the liquidator. Only the lending market may call it. A zero
// liquidity argument seizes up to the given fee amounts; a nonzero one burns
// that much liquidity (capped at the position's holdings) and hands over
// everything the position then owes.
func (v *Vault) SeizeAssets(ctx context.Context, caller, liquidator, borrower common.Address, id uint64, fee0, fee1, liquidity *big.Int) error {
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()

	if caller != v.market {
		return ErrNotMarket
	}
	owner, ok := v.OwnerOf(id)
	if !ok || owner != borrower {
		return ErrNotOwnedByBorrower
	}
	if !v.marketV.IsSeizeAllowed(ctx, liquidator, borrower) {
		return ErrSeizeNotAllowed
	}

	pos, err := v.positions.Position(ctx, id)
	if err != nil {
		return fmt.Errorf("position %d: %w", id, err)
	}

	var got0, got1, burned *big.Int
	if liquidity.Sign() > 0 {
		burned = liquidity
		if burned.Cmp(pos.Liquidity) > 0 {
			burned = pos.Liquidity
		}
		if _, _, err := v.positions.DecreaseLiquidity(ctx, id, burned, new(big.Int), new(big.Int)); err != nil {
			return fmt.Errorf("decrease liquidity: %w", err)
		}
		got0, got1, err = v.positions.Collect(ctx, id, liquidator, maxUint128, maxUint128)
	} else {
		burned = new(big.Int)
		got0, got1, err = v.positions.Collect(ctx, id, liquidator, fee0, fee1)
	}
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	v.logger.Info("collateral seized",
		zap.Uint64("position", id),
		zap.String("borrower", borrower.Hex()),
		zap.String("liquidator", liquidator.Hex()),
		zap.String("liquidity", burned.String()),
	)
	v.record(ctx, model.Event{
		Kind:         model.EventSeize,
		Owner:        borrower.Hex(),
		Counterparty: liquidator.Hex(),
		PositionID:   id,
		Amount0:      bigStr(got0),
		Amount1:      bigStr(got1),
		Liquidity:    bigStr(burned),
	})
	return nil
}
