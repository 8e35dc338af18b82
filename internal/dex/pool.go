package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/chain"
	"lpcustody/internal/oracle"
	"lpcustody/internal/univ3"
)

// PoolMeta is a pool's immutable configuration.
type PoolMeta struct {
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tick_spacing"`
}

// PoolClient reads pool state over eth_call. It satisfies the oracle's
// PoolReader. Immutable token pairs are cached per pool.
type PoolClient struct {
	client *chain.Client

	mu     sync.RWMutex
	tokens map[common.Address][2]common.Address
}

// NewPoolClient builds a PoolClient over a chain client.
func NewPoolClient(client *chain.Client) *PoolClient {
	return &PoolClient{client: client, tokens: make(map[common.Address][2]common.Address)}
}

// State reads slot0 and the global fee growth accumulators.
func (p *PoolClient) State(ctx context.Context, pool common.Address) (oracle.PoolState, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return oracle.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, p.client, pool, poolABI, "slot0")
	if err != nil {
		return oracle.PoolState{}, err
	}
	if len(values) < 2 {
		return oracle.PoolState{}, fmt.Errorf("slot0 returned %d values", len(values))
	}
	sqrtP, err := asBigInt(values[0])
	if err != nil {
		return oracle.PoolState{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return oracle.PoolState{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return oracle.PoolState{}, fmt.Errorf("tick: %w", err)
	}

	values, err = callMethod(ctx, p.client, pool, poolABI, "feeGrowthGlobal0X128")
	if err != nil {
		return oracle.PoolState{}, err
	}
	growth0, err := asBigInt(values[0])
	if err != nil {
		return oracle.PoolState{}, fmt.Errorf("feeGrowthGlobal0X128: %w", err)
	}
	values, err = callMethod(ctx, p.client, pool, poolABI, "feeGrowthGlobal1X128")
	if err != nil {
		return oracle.PoolState{}, err
	}
	growth1, err := asBigInt(values[0])
	if err != nil {
		return oracle.PoolState{}, fmt.Errorf("feeGrowthGlobal1X128: %w", err)
	}

	return oracle.PoolState{
		SqrtPriceX96:         sqrtP,
		Tick:                 tick,
		FeeGrowthGlobal0X128: growth0,
		FeeGrowthGlobal1X128: growth1,
	}, nil
}

// TickGrowth reads the fee-growth-outside accumulators of a tick.
func (p *PoolClient) TickGrowth(ctx context.Context, pool common.Address, tick int32) (univ3.TickGrowth, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return univ3.TickGrowth{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, p.client, pool, poolABI, "ticks", big.NewInt(int64(tick)))
	if err != nil {
		return univ3.TickGrowth{}, err
	}
	if len(values) < 4 {
		return univ3.TickGrowth{}, fmt.Errorf("ticks returned %d values", len(values))
	}
	outside0, err := asBigInt(values[2])
	if err != nil {
		return univ3.TickGrowth{}, fmt.Errorf("feeGrowthOutside0X128: %w", err)
	}
	outside1, err := asBigInt(values[3])
	if err != nil {
		return univ3.TickGrowth{}, fmt.Errorf("feeGrowthOutside1X128: %w", err)
	}
	return univ3.TickGrowth{
		FeeGrowthOutside0X128: outside0,
		FeeGrowthOutside1X128: outside1,
	}, nil
}

// TickCumulatives observes the cumulative tick now and window seconds ago.
func (p *PoolClient) TickCumulatives(ctx context.Context, pool common.Address, window uint32) (int64, int64, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return 0, 0, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, p.client, pool, poolABI, "observe", []uint32{window, 0})
	if err != nil {
		return 0, 0, err
	}
	cums, err := asBigIntSlice(values[0])
	if err != nil {
		return 0, 0, fmt.Errorf("tickCumulatives: %w", err)
	}
	if len(cums) != 2 {
		return 0, 0, fmt.Errorf("observe returned %d cumulatives", len(cums))
	}
	return cums[1].Int64(), cums[0].Int64(), nil
}

// Tokens returns a pool's token pair, cached after the first read.
func (p *PoolClient) Tokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	p.mu.RLock()
	pair, ok := p.tokens[pool]
	p.mu.RUnlock()
	if ok {
		return pair[0], pair[1], nil
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, p.client, pool, poolABI, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0: %w", err)
	}
	values, err = callMethod(ctx, p.client, pool, poolABI, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1: %w", err)
	}

	p.mu.Lock()
	p.tokens[pool] = [2]common.Address{token0, token1}
	p.mu.Unlock()
	return token0, token1, nil
}

// Meta reads a pool's immutable configuration.
func (p *PoolClient) Meta(ctx context.Context, pool common.Address) (PoolMeta, error) {
	token0, token1, err := p.Tokens(ctx, pool)
	if err != nil {
		return PoolMeta{}, err
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, p.client, pool, poolABI, "fee")
	if err != nil {
		return PoolMeta{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return PoolMeta{}, fmt.Errorf("fee: %w", err)
	}
	values, err = callMethod(ctx, p.client, pool, poolABI, "tickSpacing")
	if err != nil {
		return PoolMeta{}, err
	}
	spacingInt, err := asBigInt(values[0])
	if err != nil {
		return PoolMeta{}, fmt.Errorf("tick spacing: %w", err)
	}
	spacing, err := int24FromBig(spacingInt)
	if err != nil {
		return PoolMeta{}, fmt.Errorf("tick spacing: %w", err)
	}

	return PoolMeta{
		Token0:      token0,
		Token1:      token1,
		Fee:         uint32(feeInt.Uint64()),
		TickSpacing: spacing,
	}, nil
}
