package oracle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrUnknownPosition is returned when a position identifier no longer
	// resolves to a live position.
	ErrUnknownPosition = errors.New("unknown position")
	// ErrNotAdmin is returned when a non-admin calls an admin operation.
	ErrNotAdmin = errors.New("caller is not the oracle admin")
	// ErrOverwriteNotPermitted is returned when overwriting a configured
	// asset mapping while overwrites are disabled.
	ErrOverwriteNotPermitted = errors.New("reference pool overwrite not permitted")
)

// Config carries the oracle's administrative settings.
type Config struct {
	Admin             common.Address
	Quote             common.Address
	TwapWindow        uint32
	CanAdminOverwrite bool
}

// Oracle values positions from pool state, either at the instantaneous price
// or at a time-weighted average price over the configured window.
type Oracle struct {
	mu             sync.RWMutex
	admin          common.Address
	quote          common.Address
	twapWindow     uint32
	canOverwrite   bool
	referencePools map[common.Address]common.Address
	supportedPools map[common.Address]bool

	pools     PoolReader
	positions PositionReader
	logger    *zap.Logger
}

// New builds an Oracle over the given pool and position readers.
func New(cfg Config, pools PoolReader, positions PositionReader, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		admin:          cfg.Admin,
		quote:          cfg.Quote,
		twapWindow:     cfg.TwapWindow,
		canOverwrite:   cfg.CanAdminOverwrite,
		referencePools: make(map[common.Address]common.Address),
		supportedPools: make(map[common.Address]bool),
		pools:          pools,
		positions:      positions,
		logger:         logger,
	}
}

// Admin returns the oracle admin address.
func (o *Oracle) Admin() common.Address { return o.admin }

// Quote returns the asset all prices are denominated in.
func (o *Oracle) Quote() common.Address { return o.quote }

// TwapWindow returns the TWAP window length in seconds.
func (o *Oracle) TwapWindow() uint32 { return o.twapWindow }

// CanAdminOverwrite reports whether configured mappings may be replaced.
func (o *Oracle) CanAdminOverwrite() bool { return o.canOverwrite }

// ReferencePool returns the configured reference pool for an asset.
func (o *Oracle) ReferencePool(asset common.Address) (common.Address, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	pool, ok := o.referencePools[asset]
	return pool, ok
}

// SupportsPool reports whether a pool's liquidity is accepted as collateral.
func (o *Oracle) SupportsPool(pool common.Address) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.supportedPools[pool]
}

// AddAssets installs or replaces asset-to-reference-pool mappings. A zero
// pool address retires the asset; its old pool leaves the supported set.
// The batch applies as a whole: a rejected entry leaves every mapping
// untouched.
func (o *Oracle) AddAssets(caller common.Address, assets, pools []common.Address) error {
	if caller != o.admin {
		return ErrNotAdmin
	}
	if len(assets) != len(pools) {
		return fmt.Errorf("asset/pool length mismatch: %d != %d", len(assets), len(pools))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.canOverwrite {
		for _, asset := range assets {
			if _, configured := o.referencePools[asset]; configured {
				return ErrOverwriteNotPermitted
			}
		}
	}

	for i, asset := range assets {
		if old, configured := o.referencePools[asset]; configured {
			delete(o.supportedPools, old)
		}

		pool := pools[i]
		if pool == (common.Address{}) {
			delete(o.referencePools, asset)
			o.logger.Info("oracle asset retired", zap.String("asset", asset.Hex()))
			continue
		}
		o.referencePools[asset] = pool
		o.supportedPools[pool] = true
		o.logger.Info("oracle asset configured",
			zap.String("asset", asset.Hex()),
			zap.String("pool", pool.Hex()),
		)
	}
	return nil
}
