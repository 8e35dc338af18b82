package univ3

import (
	"fmt"
	"math/big"
)

// MinTick and MaxTick bound the usable tick range of a V3 pool.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// Q96 is the fixed-point scale of sqrt prices.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q128 is the fixed-point scale of fee-growth accumulators.
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)
	// Q192 is the fixed-point scale of squared sqrt prices.
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)
)

const sqrtPrec = 512

var tickBase = new(big.Float).SetPrec(sqrtPrec).SetRat(big.NewRat(10001, 10000))

// SqrtRatioAtTick returns sqrt(1.0001^tick) in Q96 fixed point.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick out of range: %d", tick)
	}

	abs := tick
	if abs < 0 {
		abs = -abs
	}

	pow := new(big.Float).SetPrec(sqrtPrec).SetInt64(1)
	sq := new(big.Float).SetPrec(sqrtPrec).Set(tickBase)
	for n := abs; n > 0; n >>= 1 {
		if n&1 == 1 {
			pow.Mul(pow, sq)
		}
		sq.Mul(sq, sq)
	}
	if tick < 0 {
		pow.Quo(new(big.Float).SetPrec(sqrtPrec).SetInt64(1), pow)
	}

	pow.Sqrt(pow)
	pow.Mul(pow, new(big.Float).SetPrec(sqrtPrec).SetInt(Q96))

	out, _ := pow.Int(nil)
	return out, nil
}

// PriceX192 returns the token1-per-token0 price in Q192 fixed point.
func PriceX192(sqrtPriceX96 *big.Int) *big.Int {
	return new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
}

// MulDiv returns floor(a * b / denom).
func MulDiv(a, b, denom *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Div(out, denom)
}

// MulDivRoundUp returns ceil(a * b / denom).
func MulDivRoundUp(a, b, denom *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	out, rem := new(big.Int).DivMod(num, denom, new(big.Int))
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}
