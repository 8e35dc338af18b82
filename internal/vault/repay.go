package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpcustody/internal/model"
	"lpcustody/internal/swap"
)

// RepayDebt burns the requested liquidity plus standing fees, converts the
// proceeds into the debt market's underlying asset, and repays exactly
// repayAmount on the caller's behalf. Any surplus goes back to the caller,
// so the vault's own balance of the underlying is unchanged by the call.
// Solvency is deliberately not checked here: repaying is the remedy for an
// account the market reports as not liquid.
func (v *Vault) RepayDebt(ctx context.Context, caller common.Address, id uint64, liquidity, repayAmount *big.Int, debtMarket, underlying common.Address, path0, path1 swap.Path) error {
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()

	if v.PeripheryPaused() {
		return ErrPeripheryPaused
	}
	if err := v.requireOwner(caller, id); err != nil {
		return err
	}
	if !v.marketV.IsListed(debtMarket) {
		return ErrMarketNotListed
	}
	marketAsset, err := v.marketV.Underlying(debtMarket)
	if err != nil {
		return fmt.Errorf("underlying of %s: %w", debtMarket.Hex(), err)
	}
	if marketAsset != underlying {
		return ErrUnderlyingMismatch
	}

	pos, err := v.positions.Position(ctx, id)
	if err != nil {
		return fmt.Errorf("position %d: %w", id, err)
	}
	if liquidity.Cmp(pos.Liquidity) > 0 {
		return ErrInsufficientLiquidity
	}
	if pos.Token0 != underlying {
		if err := path0.Validate(pos.Token0, underlying); err != nil {
			return err
		}
	}
	if pos.Token1 != underlying {
		if err := path1.Validate(pos.Token1, underlying); err != nil {
			return err
		}
	}

	if liquidity.Sign() > 0 {
		if _, _, err := v.positions.DecreaseLiquidity(ctx, id, liquidity, new(big.Int), new(big.Int)); err != nil {
			return fmt.Errorf("decrease liquidity: %w", err)
		}
	}
	got0, got1, err := v.positions.Collect(ctx, id, v.address, maxUint128, maxUint128)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	proceeds := new(big.Int)
	if amount, err := v.intoUnderlying(ctx, pos.Token0, underlying, path0, got0); err != nil {
		return err
	} else {
		proceeds.Add(proceeds, amount)
	}
	if amount, err := v.intoUnderlying(ctx, pos.Token1, underlying, path1, got1); err != nil {
		return err
	} else {
		proceeds.Add(proceeds, amount)
	}
	if proceeds.Cmp(repayAmount) < 0 {
		return ErrInsufficientRepayment
	}

	if err := v.marketV.RepayOnBehalf(ctx, debtMarket, v.address, caller, repayAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrRepaymentRejected, err)
	}

	surplus := new(big.Int).Sub(proceeds, repayAmount)
	if err := v.refund(ctx, underlying, caller, surplus); err != nil {
		return err
	}

	v.logger.Info("debt repaid from position",
		zap.Uint64("position", id),
		zap.String("market", debtMarket.Hex()),
		zap.String("repaid", repayAmount.String()),
		zap.String("surplus", surplus.String()),
	)
	v.record(ctx, model.Event{
		Kind:         model.EventRepay,
		Owner:        caller.Hex(),
		Counterparty: debtMarket.Hex(),
		PositionID:   id,
		Amount0:      bigStr(repayAmount),
		Amount1:      bigStr(surplus),
		Liquidity:    bigStr(liquidity),
		Asset:        underlying.Hex(),
	})
	return nil
}

// intoUnderlying converts a collected balance into the repayment asset,
// passing it through unchanged when it already is that asset.
func (v *Vault) intoUnderlying(ctx context.Context, token, underlying common.Address, path swap.Path, amount *big.Int) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	if token == underlying {
		return amount, nil
	}
	out, err := v.router.ExactInput(ctx, path, v.address, v.address, amount, new(big.Int))
	if err != nil {
		return nil, fmt.Errorf("swap %s into underlying: %w", token.Hex(), err)
	}
	return out, nil
}
