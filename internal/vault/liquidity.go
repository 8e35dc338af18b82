package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpcustody/internal/model"
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func (v *Vault) peripheryGuards(ctx context.Context, caller common.Address, id uint64) error {
	if v.PeripheryPaused() {
		return ErrPeripheryPaused
	}
	if err := v.requireOwner(caller, id); err != nil {
		return err
	}
	return v.requireLiquid(ctx, caller)
}

// IncreaseLiquidity adds owner-supplied tokens to a custodied position.
// Unused remainders return to the caller.
func (v *Vault) IncreaseLiquidity(ctx context.Context, caller common.Address, id uint64, amount0, amount1, amount0Min, amount1Min *big.Int) error {
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()

	if err := v.peripheryGuards(ctx, caller, id); err != nil {
		return err
	}

	pos, err := v.positions.Position(ctx, id)
	if err != nil {
		return fmt.Errorf("position %d: %w", id, err)
	}

	if amount0.Sign() > 0 {
		if err := v.bank.Transfer(ctx, pos.Token0, caller, v.address, amount0); err != nil {
			return fmt.Errorf("fund token0: %w", err)
		}
	}
	if amount1.Sign() > 0 {
		if err := v.bank.Transfer(ctx, pos.Token1, caller, v.address, amount1); err != nil {
			return fmt.Errorf("fund token1: %w", err)
		}
	}

	liquidity, used0, used1, err := v.positions.IncreaseLiquidity(ctx, id, amount0, amount1, amount0Min, amount1Min)
	if err != nil {
		return fmt.Errorf("increase liquidity: %w", err)
	}

	if err := v.refund(ctx, pos.Token0, caller, new(big.Int).Sub(amount0, used0)); err != nil {
		return err
	}
	if err := v.refund(ctx, pos.Token1, caller, new(big.Int).Sub(amount1, used1)); err != nil {
		return err
	}

	v.record(ctx, model.Event{
		Kind:       model.EventIncreaseLiquidity,
		Owner:      caller.Hex(),
		PositionID: id,
		Amount0:    bigStr(used0),
		Amount1:    bigStr(used1),
		Liquidity:  bigStr(liquidity),
	})
	return nil
}

// DecreaseLiquidity burns liquidity from a custodied position. The freed
// amounts accrue to the position's uncollected balances.
func (v *Vault) DecreaseLiquidity(ctx context.Context, caller common.Address, id uint64, liquidity, amount0Min, amount1Min *big.Int, deadline uint64) error {
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()

	if err := v.checkDeadline(deadline); err != nil {
		return err
	}
	if err := v.peripheryGuards(ctx, caller, id); err != nil {
		return err
	}

	pos, err := v.positions.Position(ctx, id)
	if err != nil {
		return fmt.Errorf("position %d: %w", id, err)
	}
	if liquidity.Cmp(pos.Liquidity) > 0 {
		return ErrInsufficientLiquidity
	}

	amount0, amount1, err := v.positions.DecreaseLiquidity(ctx, id, liquidity, amount0Min, amount1Min)
	if err != nil {
		return fmt.Errorf("decrease liquidity: %w", err)
	}

	v.logger.Info("liquidity decreased",
		zap.Uint64("position", id),
		zap.String("liquidity", liquidity.String()),
	)
	v.record(ctx, model.Event{
		Kind:       model.EventDecreaseLiquidity,
		Owner:      caller.Hex(),
		PositionID: id,
		Amount0:    bigStr(amount0),
		Amount1:    bigStr(amount1),
		Liquidity:  bigStr(liquidity),
	})
	return nil
}

// CollectFees moves exactly the requested uncollected amounts out of the
// position to the caller.
func (v *Vault) CollectFees(ctx context.Context, caller common.Address, id uint64, amount0, amount1 *big.Int) error {
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()

	if err := v.peripheryGuards(ctx, caller, id); err != nil {
		return err
	}

	got0, got1, err := v.positions.Collect(ctx, id, caller, amount0, amount1)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	if got0.Cmp(amount0) < 0 || got1.Cmp(amount1) < 0 {
		return ErrInsufficientFees
	}

	v.record(ctx, model.Event{
		Kind:       model.EventCollect,
		Owner:      caller.Hex(),
		PositionID: id,
		Amount0:    bigStr(got0),
		Amount1:    bigStr(got1),
	})
	return nil
}

func (v *Vault) refund(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	if err := v.bank.Transfer(ctx, token, v.address, to, amount); err != nil {
		return fmt.Errorf("refund %s: %w", token.Hex(), err)
	}
	return nil
}
