package univ3

import "math/big"

// Amount0ForLiquidity returns the token0 amount held by liquidity between two
// sqrt prices, rounding down.
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	out := new(big.Int).Lsh(liquidity, 96)
	out.Mul(out, new(big.Int).Sub(sqrtB, sqrtA))
	out.Div(out, sqrtB)
	return out.Div(out, sqrtA)
}

// Amount1ForLiquidity returns the token1 amount held by liquidity between two
// sqrt prices, rounding down.
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	out := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtB, sqrtA))
	return out.Div(out, Q96)
}

// AmountsForLiquidity converts a liquidity magnitude into token amounts at the
// given pool sqrt price, clamped to the position's range.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return Amount0ForLiquidity(sqrtA, sqrtB, liquidity), big.NewInt(0)
	case sqrtP.Cmp(sqrtB) < 0:
		return Amount0ForLiquidity(sqrtP, sqrtB, liquidity), Amount1ForLiquidity(sqrtA, sqrtP, liquidity)
	default:
		return big.NewInt(0), Amount1ForLiquidity(sqrtA, sqrtB, liquidity)
	}
}

// LiquidityForAmount0 returns the liquidity a token0 amount provides between
// two sqrt prices.
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	intermediate := MulDiv(sqrtA, sqrtB, Q96)
	return MulDiv(amount0, intermediate, new(big.Int).Sub(sqrtB, sqrtA))
}

// LiquidityForAmount1 returns the liquidity a token1 amount provides between
// two sqrt prices.
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	return MulDiv(amount1, Q96, new(big.Int).Sub(sqrtB, sqrtA))
}

// LiquidityForAmounts returns the largest liquidity both amounts can fund at
// the given pool sqrt price.
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return LiquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Cmp(sqrtB) < 0:
		l0 := LiquidityForAmount0(sqrtP, sqrtB, amount0)
		l1 := LiquidityForAmount1(sqrtA, sqrtP, amount1)
		if l0.Cmp(l1) < 0 {
			return l0
		}
		return l1
	default:
		return LiquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}
