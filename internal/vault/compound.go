package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpcustody/internal/model"
	"lpcustody/internal/swap"
	"lpcustody/internal/univ3"
)

var splitUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// SplitForRange computes the token0/token1 amounts worth depositing into a
// range at the current price so that both sides are consumed in the range's
// own ratio. The split solves value conservation and the range ratio as a
// pair of linear equations in X192 fixed point.
func SplitForRange(sqrtPriceX96 *big.Int, tickLower, tickUpper int32, amount0, amount1 *big.Int) (*big.Int, *big.Int, error) {
	sqrtA, err := univ3.SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := univ3.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, err
	}

	u0, u1 := univ3.AmountsForLiquidity(sqrtPriceX96, sqrtA, sqrtB, splitUnit)
	priceX192 := univ3.PriceX192(sqrtPriceX96)

	// Total value in token1 units, carried at X192 scale until the final
	// division so the split loses at most one unit per side.
	v1x192 := new(big.Int).Mul(amount0, priceX192)
	v1x192.Add(v1x192, new(big.Int).Mul(amount1, univ3.Q192))

	if u0.Sign() == 0 {
		// Price above the range: the deposit is all token1.
		return new(big.Int), new(big.Int).Div(v1x192, univ3.Q192), nil
	}
	if u1.Sign() == 0 {
		// Price below the range: the deposit is all token0.
		return new(big.Int).Div(v1x192, priceX192), new(big.Int), nil
	}

	denom := new(big.Int).Mul(u0, priceX192)
	denom.Add(denom, new(big.Int).Mul(u1, univ3.Q192))

	want0 := new(big.Int).Mul(v1x192, u0)
	want0.Div(want0, denom)
	want1 := new(big.Int).Mul(v1x192, u1)
	want1.Div(want1, denom)
	return want0, want1, nil
}

// rebalanceToSplit swaps whichever side of (have0, have1) exceeds its target
// through the pool's own fee tier and returns the post-swap balances.
func (v *Vault) rebalanceToSplit(ctx context.Context, pos model.PositionState, have0, have1, want0, want1 *big.Int) (*big.Int, *big.Int, error) {
	switch {
	case have0.Cmp(want0) > 0:
		in := new(big.Int).Sub(have0, want0)
		out, err := v.router.ExactInput(ctx, swap.Single(pos.Token0, pos.Fee, pos.Token1), v.address, v.address, in, new(big.Int))
		if err != nil {
			return nil, nil, fmt.Errorf("swap token0 excess: %w", err)
		}
		return new(big.Int).Sub(have0, in), new(big.Int).Add(have1, out), nil
	case have1.Cmp(want1) > 0:
		in := new(big.Int).Sub(have1, want1)
		out, err := v.router.ExactInput(ctx, swap.Single(pos.Token1, pos.Fee, pos.Token0), v.address, v.address, in, new(big.Int))
		if err != nil {
			return nil, nil, fmt.Errorf("swap token1 excess: %w", err)
		}
		return new(big.Int).Add(have0, out), new(big.Int).Sub(have1, in), nil
	}
	return have0, have1, nil
}

// withinTolerance reports whether a realized amount sits inside the caller's
// band around its expectation. The minimum fixes the allowed shortfall and
// the same slack is allowed above the expectation; a zero expectation
// enforces only the minimum.
func withinTolerance(realized, expected, min *big.Int) bool {
	if realized.Cmp(min) < 0 {
		return false
	}
	if expected == nil || expected.Sign() == 0 {
		return true
	}
	slack := new(big.Int).Sub(expected, min)
	if slack.Sign() < 0 {
		slack.SetInt64(0)
	}
	upper := new(big.Int).Add(expected, slack)
	return realized.Cmp(upper) <= 0
}

// abortSlippage unwinds a rebalance whose split landed outside the caller's
// tolerance: the balances held for the deposit go back to the owner, who
// could have collected them directly, and the operation fails.
func (v *Vault) abortSlippage(ctx context.Context, pos model.PositionState, caller common.Address, bal0, bal1 *big.Int) error {
	if err := v.refund(ctx, pos.Token0, caller, bal0); err != nil {
		return err
	}
	if err := v.refund(ctx, pos.Token1, caller, bal1); err != nil {
		return err
	}
	return ErrSlippage
}

// CompoundFees collects the position's standing fees, splits them to the
// range's ratio at the current price, and deposits them back as liquidity.
// The caller quotes the amounts it expects to land on each side; a realized
// split outside the [min, expected+(expected-min)] band aborts with
// ErrSlippage before any liquidity is added, paying the collected balances
// out to the owner instead.
func (v *Vault) CompoundFees(ctx context.Context, caller common.Address, id uint64, expected0, expected1, amount0Min, amount1Min *big.Int) error {
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
	state, err := v.pools.State(ctx, pos.Pool)
	if err != nil {
		return fmt.Errorf("pool %s: %w", pos.Pool.Hex(), err)
	}

	got0, got1, err := v.positions.Collect(ctx, id, v.address, maxUint128, maxUint128)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	if got0.Sign() == 0 && got1.Sign() == 0 {
		return ErrInsufficientFees
	}

	want0, want1, err := SplitForRange(state.SqrtPriceX96, pos.TickLower, pos.TickUpper, got0, got1)
	if err != nil {
		return err
	}
	bal0, bal1, err := v.rebalanceToSplit(ctx, pos, got0, got1, want0, want1)
	if err != nil {
		return err
	}

	if !withinTolerance(bal0, expected0, amount0Min) || !withinTolerance(bal1, expected1, amount1Min) {
		return v.abortSlippage(ctx, pos, caller, bal0, bal1)
	}

	liquidity, used0, used1, err := v.positions.IncreaseLiquidity(ctx, id, bal0, bal1, amount0Min, amount1Min)
	if err != nil {
		return fmt.Errorf("increase liquidity: %w", err)
	}

	if err := v.refund(ctx, pos.Token0, caller, new(big.Int).Sub(bal0, used0)); err != nil {
		return err
	}
	if err := v.refund(ctx, pos.Token1, caller, new(big.Int).Sub(bal1, used1)); err != nil {
		return err
	}

	v.logger.Info("fees compounded",
		zap.Uint64("position", id),
		zap.String("used0", used0.String()),
		zap.String("used1", used1.String()),
		zap.String("expected0", bigStr(expected0)),
		zap.String("expected1", bigStr(expected1)),
	)
	v.record(ctx, model.Event{
		Kind:       model.EventCompound,
		Owner:      caller.Hex(),
		PositionID: id,
		Amount0:    bigStr(used0),
		Amount1:    bigStr(used1),
		Liquidity:  bigStr(liquidity),
	})
	return nil
}
