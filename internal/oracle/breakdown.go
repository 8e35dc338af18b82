package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/model"
	"lpcustody/internal/univ3"
)

// BreakdownCurrent values a position at the pool's instantaneous price. It is
// manipulable within a block and must only feed previews, never solvency or
// liquidation decisions.
func (o *Oracle) BreakdownCurrent(ctx context.Context, id uint64) (model.Breakdown, error) {
	return o.breakdown(ctx, id, false)
}

// BreakdownTWAP values a position at the time-weighted average price over the
// configured window. This is the valuation every money-movement decision
// gates on.
func (o *Oracle) BreakdownTWAP(ctx context.Context, id uint64) (model.Breakdown, error) {
	return o.breakdown(ctx, id, true)
}

func (o *Oracle) breakdown(ctx context.Context, id uint64, twap bool) (model.Breakdown, error) {
	pos, err := o.positions.Position(ctx, id)
	if err != nil {
		return model.Breakdown{}, err
	}

	state, err := o.pools.State(ctx, pos.Pool)
	if err != nil {
		return model.Breakdown{}, fmt.Errorf("pool state %s: %w", pos.Pool.Hex(), err)
	}

	fee0, fee1, err := o.accruedFees(ctx, pos, state)
	if err != nil {
		return model.Breakdown{}, err
	}

	sqrtP := state.SqrtPriceX96
	if twap {
		tick, err := o.PoolTwapTick(ctx, pos.Pool)
		if err != nil {
			return model.Breakdown{}, err
		}
		sqrtP, err = univ3.SqrtRatioAtTick(tick)
		if err != nil {
			return model.Breakdown{}, err
		}
	}

	sqrtA, err := univ3.SqrtRatioAtTick(pos.TickLower)
	if err != nil {
		return model.Breakdown{}, err
	}
	sqrtB, err := univ3.SqrtRatioAtTick(pos.TickUpper)
	if err != nil {
		return model.Breakdown{}, err
	}

	amount0, amount1 := univ3.AmountsForLiquidity(sqrtP, sqrtA, sqrtB, pos.Liquidity)

	return model.Breakdown{
		Token0:     pos.Token0,
		Token1:     pos.Token1,
		Fee0:       fee0,
		Fee1:       fee1,
		Liquidity0: amount0,
		Liquidity1: amount1,
		Liquidity:  new(big.Int).Set(pos.Liquidity),
	}, nil
}

func (o *Oracle) accruedFees(ctx context.Context, pos model.PositionState, state PoolState) (*big.Int, *big.Int, error) {
	lower, err := o.pools.TickGrowth(ctx, pos.Pool, pos.TickLower)
	if err != nil {
		return nil, nil, fmt.Errorf("tick %d growth: %w", pos.TickLower, err)
	}
	upper, err := o.pools.TickGrowth(ctx, pos.Pool, pos.TickUpper)
	if err != nil {
		return nil, nil, fmt.Errorf("tick %d growth: %w", pos.TickUpper, err)
	}

	inside0, inside1 := univ3.FeeGrowthInside(
		state.FeeGrowthGlobal0X128, state.FeeGrowthGlobal1X128,
		lower, upper,
		pos.TickLower, pos.TickUpper, state.Tick,
	)

	fee0 := univ3.FeesOwed(pos.Liquidity, inside0, pos.FeeGrowthInside0LastX128)
	fee1 := univ3.FeesOwed(pos.Liquidity, inside1, pos.FeeGrowthInside1LastX128)
	fee0.Add(fee0, pos.TokensOwed0)
	fee1.Add(fee1, pos.TokensOwed1)
	return fee0, fee1, nil
}

// PoolTwapTick returns the time-weighted average tick of a pool over the
// configured window, rounded toward negative infinity.
func (o *Oracle) PoolTwapTick(ctx context.Context, pool common.Address) (int32, error) {
	if o.twapWindow == 0 {
		state, err := o.pools.State(ctx, pool)
		if err != nil {
			return 0, err
		}
		return state.Tick, nil
	}

	now, before, err := o.pools.TickCumulatives(ctx, pool, o.twapWindow)
	if err != nil {
		return 0, fmt.Errorf("tick cumulatives %s: %w", pool.Hex(), err)
	}

	delta := now - before
	tick := delta / int64(o.twapWindow)
	if delta < 0 && delta%int64(o.twapWindow) != 0 {
		tick--
	}
	if tick < int64(univ3.MinTick) || tick > int64(univ3.MaxTick) {
		return 0, fmt.Errorf("twap tick out of range: %d", tick)
	}
	return int32(tick), nil
}

// Tick returns the pool's current tick.
func (o *Oracle) Tick(ctx context.Context, pool common.Address) (int32, error) {
	state, err := o.pools.State(ctx, pool)
	if err != nil {
		return 0, err
	}
	return state.Tick, nil
}
