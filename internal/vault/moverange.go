package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpcustody/internal/model"
)

// MoveRange migrates liquidity out of a position into a freshly minted one
// over [newLower, newUpper). A zero liquidity argument moves only the
// standing fees; the old record survives with its remaining liquidity. When
// the whole position is burned the old record is purged. Returns the new
// position's identifier.
//
// The caller quotes the amounts it expects to mint on each side under the
// same tolerance contract as CompoundFees. The tolerance is checked after
// the decrease and collect have already run; on an ErrSlippage abort the
// recovered balances are paid to the owner rather than minted.
func (v *Vault) MoveRange(ctx context.Context, caller common.Address, id uint64, liquidity *big.Int, newLower, newUpper int32, expected0, expected1, amount0Min, amount1Min *big.Int, deadline uint64) (uint64, error) {
	if err := v.enter(); err != nil {
		return 0, err
	}
	defer v.leave()

	if err := v.checkDeadline(deadline); err != nil {
		return 0, err
	}
	if err := v.peripheryGuards(ctx, caller, id); err != nil {
		return 0, err
	}

	pos, err := v.positions.Position(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("position %d: %w", id, err)
	}
	if liquidity.Cmp(pos.Liquidity) > 0 {
		return 0, ErrInsufficientLiquidity
	}
	burnAll := liquidity.Sign() > 0 && liquidity.Cmp(pos.Liquidity) == 0

	if liquidity.Sign() > 0 {
		if _, _, err := v.positions.DecreaseLiquidity(ctx, id, liquidity, new(big.Int), new(big.Int)); err != nil {
			return 0, fmt.Errorf("decrease liquidity: %w", err)
		}
	}
	got0, got1, err := v.positions.Collect(ctx, id, v.address, maxUint128, maxUint128)
	if err != nil {
		return 0, fmt.Errorf("collect: %w", err)
	}
	if got0.Sign() == 0 && got1.Sign() == 0 {
		return 0, ErrInsufficientFees
	}

	state, err := v.pools.State(ctx, pos.Pool)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", pos.Pool.Hex(), err)
	}
	want0, want1, err := SplitForRange(state.SqrtPriceX96, newLower, newUpper, got0, got1)
	if err != nil {
		return 0, err
	}
	bal0, bal1, err := v.rebalanceToSplit(ctx, pos, got0, got1, want0, want1)
	if err != nil {
		return 0, err
	}

	if !withinTolerance(bal0, expected0, amount0Min) || !withinTolerance(bal1, expected1, amount1Min) {
		return 0, v.abortSlippage(ctx, pos, caller, bal0, bal1)
	}

	newID, minted, used0, used1, err := v.positions.Mint(ctx, MintParams{
		Pool:       pos.Pool,
		TickLower:  newLower,
		TickUpper:  newUpper,
		Amount0:    bal0,
		Amount1:    bal1,
		Amount0Min: amount0Min,
		Amount1Min: amount1Min,
		Recipient:  v.address,
	})
	if err != nil {
		return 0, fmt.Errorf("mint: %w", err)
	}

	v.appendRecord(caller, newID)
	if burnAll {
		if err := v.positions.Burn(ctx, id); err != nil {
			return 0, fmt.Errorf("burn position %d: %w", id, err)
		}
		v.purge(caller, id)
	}

	if err := v.refund(ctx, pos.Token0, caller, new(big.Int).Sub(bal0, used0)); err != nil {
		return 0, err
	}
	if err := v.refund(ctx, pos.Token1, caller, new(big.Int).Sub(bal1, used1)); err != nil {
		return 0, err
	}

	v.logger.Info("range moved",
		zap.Uint64("position", id),
		zap.Uint64("new_position", newID),
		zap.Int32("lower", newLower),
		zap.Int32("upper", newUpper),
		zap.Bool("burned_all", burnAll),
	)
	v.record(ctx, model.Event{
		Kind:          model.EventMoveRange,
		Owner:         caller.Hex(),
		PositionID:    id,
		NewPositionID: newID,
		Amount0:       bigStr(used0),
		Amount1:       bigStr(used1),
		Liquidity:     bigStr(minted),
	})
	return newID, nil
}
