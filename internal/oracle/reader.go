package oracle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/model"
	"lpcustody/internal/univ3"
)

// PoolState is an instantaneous snapshot of a pool's pricing state.
type PoolState struct {
	SqrtPriceX96         *big.Int
	Tick                 int32
	FeeGrowthGlobal0X128 *big.Int
	FeeGrowthGlobal1X128 *big.Int
}

// PoolReader reads pricing state from a concentrated-liquidity pool.
type PoolReader interface {
	State(ctx context.Context, pool common.Address) (PoolState, error)
	TickGrowth(ctx context.Context, pool common.Address, tick int32) (univ3.TickGrowth, error)
	// TickCumulatives returns the pool's cumulative tick now and one TWAP
	// window ago.
	TickCumulatives(ctx context.Context, pool common.Address, window uint32) (now, before int64, err error)
	Tokens(ctx context.Context, pool common.Address) (token0, token1 common.Address, err error)
}

// PositionReader reads position state by identifier. Implementations return
// ErrUnknownPosition (wrapped or bare) for identifiers that no longer exist.
type PositionReader interface {
	Position(ctx context.Context, id uint64) (model.PositionState, error)
}
