package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/chain"
	"lpcustody/internal/model"
	"lpcustody/internal/oracle"
)

// PositionClient reads position state from the position manager over
// eth_call and resolves each position's pool through the factory. It
// satisfies the oracle's PositionReader.
type PositionClient struct {
	client  *chain.Client
	manager common.Address
	factory common.Address

	mu    sync.RWMutex
	pools map[poolKey]common.Address
}

type poolKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

// NewPositionClient builds a PositionClient over a chain client.
func NewPositionClient(client *chain.Client, manager, factory common.Address) *PositionClient {
	return &PositionClient{
		client:  client,
		manager: manager,
		factory: factory,
		pools:   make(map[poolKey]common.Address),
	}
}

// Position reads a position by identifier. Identifiers that no longer
// resolve on the manager surface as ErrUnknownPosition.
func (p *PositionClient) Position(ctx context.Context, id uint64) (model.PositionState, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return model.PositionState{}, fmt.Errorf("parse manager abi: %w", err)
	}

	values, err := callMethod(ctx, p.client, p.manager, managerABI, "positions", new(big.Int).SetUint64(id))
	if err != nil {
		// Burned identifiers revert on the manager.
		return model.PositionState{}, fmt.Errorf("%w: id %d: %v", oracle.ErrUnknownPosition, id, err)
	}
	if len(values) < 12 {
		return model.PositionState{}, fmt.Errorf("positions returned %d values", len(values))
	}

	token0, err := asAddress(values[2])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("token1: %w", err)
	}
	feeInt, err := asBigInt(values[4])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("fee: %w", err)
	}
	fee := uint32(feeInt.Uint64())

	lowerInt, err := asBigInt(values[5])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("tickLower: %w", err)
	}
	lower, err := int24FromBig(lowerInt)
	if err != nil {
		return model.PositionState{}, fmt.Errorf("tickLower: %w", err)
	}
	upperInt, err := asBigInt(values[6])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("tickUpper: %w", err)
	}
	upper, err := int24FromBig(upperInt)
	if err != nil {
		return model.PositionState{}, fmt.Errorf("tickUpper: %w", err)
	}

	liquidity, err := asBigInt(values[7])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("liquidity: %w", err)
	}
	inside0, err := asBigInt(values[8])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("feeGrowthInside0LastX128: %w", err)
	}
	inside1, err := asBigInt(values[9])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("feeGrowthInside1LastX128: %w", err)
	}
	owed0, err := asBigInt(values[10])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("tokensOwed0: %w", err)
	}
	owed1, err := asBigInt(values[11])
	if err != nil {
		return model.PositionState{}, fmt.Errorf("tokensOwed1: %w", err)
	}

	pool, err := p.poolFor(ctx, token0, token1, fee)
	if err != nil {
		return model.PositionState{}, err
	}

	return model.PositionState{
		ID:                       id,
		Pool:                     pool,
		Token0:                   token0,
		Token1:                   token1,
		Fee:                      fee,
		TickLower:                lower,
		TickUpper:                upper,
		Liquidity:                liquidity,
		FeeGrowthInside0LastX128: inside0,
		FeeGrowthInside1LastX128: inside1,
		TokensOwed0:              owed0,
		TokensOwed1:              owed1,
	}, nil
}

// OwnerOf returns the current holder of a position.
func (p *PositionClient) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse manager abi: %w", err)
	}
	values, err := callMethod(ctx, p.client, p.manager, managerABI, "ownerOf", new(big.Int).SetUint64(id))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: id %d: %v", oracle.ErrUnknownPosition, id, err)
	}
	return asAddress(values[0])
}

func (p *PositionClient) poolFor(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, error) {
	key := poolKey{token0: token0, token1: token1, fee: fee}
	p.mu.RLock()
	pool, ok := p.pools[key]
	p.mu.RUnlock()
	if ok {
		return pool, nil
	}

	factABI, err := FactoryABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := callMethod(ctx, p.client, p.factory, factABI, "getPool", token0, token1, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	pool, err = asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("pool: %w", err)
	}
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no pool for %s/%s fee %d", token0.Hex(), token1.Hex(), fee)
	}

	p.mu.Lock()
	p.pools[key] = pool
	p.mu.Unlock()
	return pool, nil
}
