package univ3

import "math/big"

var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

// SubU256 returns (a - b) mod 2^256, matching the wraparound semantics of the
// pool's fee-growth accumulators.
func SubU256(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		out.Add(out, twoPow256)
	}
	return out
}

// TickGrowth holds the fee growth recorded on the far side of a tick.
type TickGrowth struct {
	FeeGrowthOutside0X128 *big.Int
	FeeGrowthOutside1X128 *big.Int
}

// FeeGrowthInside computes the fee growth accumulated inside a tick range,
// per token, from the global accumulators and the range's boundary ticks.
func FeeGrowthInside(
	global0, global1 *big.Int,
	lower, upper TickGrowth,
	tickLower, tickUpper, tickCurrent int32,
) (*big.Int, *big.Int) {
	var below0, below1 *big.Int
	if tickCurrent >= tickLower {
		below0 = lower.FeeGrowthOutside0X128
		below1 = lower.FeeGrowthOutside1X128
	} else {
		below0 = SubU256(global0, lower.FeeGrowthOutside0X128)
		below1 = SubU256(global1, lower.FeeGrowthOutside1X128)
	}

	var above0, above1 *big.Int
	if tickCurrent < tickUpper {
		above0 = upper.FeeGrowthOutside0X128
		above1 = upper.FeeGrowthOutside1X128
	} else {
		above0 = SubU256(global0, upper.FeeGrowthOutside0X128)
		above1 = SubU256(global1, upper.FeeGrowthOutside1X128)
	}

	inside0 := SubU256(SubU256(global0, below0), above0)
	inside1 := SubU256(SubU256(global1, below1), above1)
	return inside0, inside1
}

// FeesOwed returns the uncollected fees a position has accrued since its last
// checkpoint: liquidity * growth delta at Q128 scale, rounding down.
func FeesOwed(liquidity, growthInside, growthInsideLast *big.Int) *big.Int {
	delta := SubU256(growthInside, growthInsideLast)
	out := new(big.Int).Mul(delta, liquidity)
	return out.Rsh(out, 128)
}
