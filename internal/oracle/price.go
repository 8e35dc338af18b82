package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/univ3"
)

// WAD is the fixed-point scale of oracle prices: quote-asset raw units per
// one raw unit of the priced asset, times 1e18.
var WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Price returns the WAD-scaled TWAP price of an asset in quote-asset units.
// Reference pools must pair the asset directly against the quote asset.
func (o *Oracle) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	if asset == o.quote {
		return new(big.Int).Set(WAD), nil
	}

	pool, ok := o.ReferencePool(asset)
	if !ok {
		return nil, fmt.Errorf("no reference pool configured for asset %s", asset.Hex())
	}

	token0, token1, err := o.pools.Tokens(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("pool tokens %s: %w", pool.Hex(), err)
	}

	tick, err := o.PoolTwapTick(ctx, pool)
	if err != nil {
		return nil, err
	}
	sqrtP, err := univ3.SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	priceX192 := univ3.PriceX192(sqrtP)

	switch asset {
	case token0:
		if token1 != o.quote {
			return nil, fmt.Errorf("reference pool %s does not quote against %s", pool.Hex(), o.quote.Hex())
		}
		return univ3.MulDiv(priceX192, WAD, univ3.Q192), nil
	case token1:
		if token0 != o.quote {
			return nil, fmt.Errorf("reference pool %s does not quote against %s", pool.Hex(), o.quote.Hex())
		}
		return univ3.MulDiv(univ3.Q192, WAD, priceX192), nil
	default:
		return nil, fmt.Errorf("asset %s is not a token of its reference pool %s", asset.Hex(), pool.Hex())
	}
}

// Value converts an asset amount to quote units at a WAD price, rounding
// down. Collateral available to a borrower is always valued this way.
func Value(amount, price *big.Int) *big.Int {
	return univ3.MulDiv(amount, price, WAD)
}

// ValueRoundUp converts an asset amount to quote units at a WAD price,
// rounding up. Amounts required to cover debt are valued this way.
func ValueRoundUp(amount, price *big.Int) *big.Int {
	return univ3.MulDivRoundUp(amount, price, WAD)
}
