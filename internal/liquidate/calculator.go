package liquidate

import (
	"context"
	"errors"
	"math/big"

	"go.uber.org/zap"

	"lpcustody/internal/oracle"
	"lpcustody/internal/univ3"
)

// ErrCollateralExceeded is returned when the recovery target is worth more
// than the position's fees and liquidity combined.
var ErrCollateralExceeded = errors.New("recovery target exceeds total collateral value")

// Plan is the amounts to seize from a position: fee balances first, then a
// uniform liquidity fraction.
type Plan struct {
	Fee0      *big.Int
	Fee1      *big.Int
	Liquidity *big.Int
}

// Calculator turns a recovery value target into seize amounts, valuing the
// position at the oracle's TWAP prices.
type Calculator struct {
	oracle *oracle.Oracle
	logger *zap.Logger
}

// New builds a Calculator over an oracle.
func New(o *oracle.Oracle, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{oracle: o, logger: logger}
}

// Seize computes what to take from a position to recover targetValue quote
// units. Fees are consumed first; only when they fall short is liquidity
// burned, uniformly so both underlying amounts scale by the same fraction.
// Fractions round up: the market is protected, never the borrower.
func (c *Calculator) Seize(ctx context.Context, id uint64, targetValue *big.Int) (Plan, error) {
	zero := Plan{Fee0: new(big.Int), Fee1: new(big.Int), Liquidity: new(big.Int)}
	if targetValue.Sign() <= 0 {
		return zero, nil
	}

	bd, err := c.oracle.BreakdownTWAP(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	price0, err := c.oracle.Price(ctx, bd.Token0)
	if err != nil {
		return Plan{}, err
	}
	price1, err := c.oracle.Price(ctx, bd.Token1)
	if err != nil {
		return Plan{}, err
	}

	feeValue := new(big.Int).Add(oracle.Value(bd.Fee0, price0), oracle.Value(bd.Fee1, price1))
	liquidityValue := new(big.Int).Add(oracle.Value(bd.Liquidity0, price0), oracle.Value(bd.Liquidity1, price1))

	total := new(big.Int).Add(feeValue, liquidityValue)
	if targetValue.Cmp(total) > 0 {
		return Plan{}, ErrCollateralExceeded
	}

	if feeValue.Cmp(targetValue) >= 0 {
		fee0 := univ3.MulDivRoundUp(bd.Fee0, targetValue, feeValue)
		if fee0.Cmp(bd.Fee0) > 0 {
			fee0.Set(bd.Fee0)
		}
		fee1 := univ3.MulDivRoundUp(bd.Fee1, targetValue, feeValue)
		if fee1.Cmp(bd.Fee1) > 0 {
			fee1.Set(bd.Fee1)
		}
		return Plan{Fee0: fee0, Fee1: fee1, Liquidity: new(big.Int)}, nil
	}

	remaining := new(big.Int).Sub(targetValue, feeValue)
	liquidity := univ3.MulDivRoundUp(bd.Liquidity, remaining, liquidityValue)
	if liquidity.Cmp(bd.Liquidity) > 0 {
		liquidity.Set(bd.Liquidity)
	}

	c.logger.Debug("seize plan includes liquidity",
		zap.Uint64("position", id),
		zap.String("target", targetValue.String()),
		zap.String("fee_value", feeValue.String()),
		zap.String("liquidity", liquidity.String()),
	)
	return Plan{
		Fee0:      new(big.Int).Set(bd.Fee0),
		Fee1:      new(big.Int).Set(bd.Fee1),
		Liquidity: liquidity,
	}, nil
}
