package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PositionState mirrors the pool-side state of a custodied position.
type PositionState struct {
	ID                       uint64
	Pool                     common.Address
	Token0                   common.Address
	Token1                   common.Address
	Fee                      uint32
	TickLower                int32
	TickUpper                int32
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
}

// Breakdown is the computed value decomposition of a position: uncollected
// fees and locked liquidity, each in both asset denominations.
type Breakdown struct {
	Token0     common.Address
	Token1     common.Address
	Fee0       *big.Int
	Fee1       *big.Int
	Liquidity0 *big.Int
	Liquidity1 *big.Int
	Liquidity  *big.Int
}
