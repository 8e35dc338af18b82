package vault

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpcustody/internal/model"
	"lpcustody/internal/oracle"
	"lpcustody/internal/storage"
)

// Config carries the vault's identities and limits.
type Config struct {
	Address       common.Address
	Admin         common.Address
	Market        common.Address
	UserTokensMax int
}

// Deps bundles the vault's collaborators.
type Deps struct {
	Positions PositionManager
	Router    SwapRouter
	Market    MarketView
	Bank      TokenBank
	Oracle    *oracle.Oracle
	Pools     oracle.PoolReader
	Recorder  storage.Recorder
}

// Vault owns deposited positions on behalf of users and exposes the gated
// operations that may act on them. All mutating operations take the caller's
// identity explicitly and run as a single non-interleaved unit of work.
type Vault struct {
	address       common.Address
	admin         common.Address
	market        common.Address
	bridge        common.Address
	userTokensMax int

	mu              sync.Mutex
	entered         bool
	depositsPaused  bool
	peripheryPaused bool
	owners          map[uint64]common.Address
	userTokens      map[common.Address][]uint64
	seq             uint64

	positions PositionManager
	router    SwapRouter
	marketV   MarketView
	bank      TokenBank
	oracle    *oracle.Oracle
	pools     oracle.PoolReader
	recorder  storage.Recorder
	logger    *zap.Logger
	now       func() uint64
}

// New builds a Vault. A nil recorder discards audit events.
func New(cfg Config, deps Deps, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = storage.Nop{}
	}
	return &Vault{
		address:       cfg.Address,
		admin:         cfg.Admin,
		market:        cfg.Market,
		userTokensMax: cfg.UserTokensMax,
		owners:        make(map[uint64]common.Address),
		userTokens:    make(map[common.Address][]uint64),
		positions:     deps.Positions,
		router:        deps.Router,
		marketV:       deps.Market,
		bank:          deps.Bank,
		oracle:        deps.Oracle,
		pools:         deps.Pools,
		recorder:      recorder,
		logger:        logger,
		now:           func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// Address returns the vault's own account identity.
func (v *Vault) Address() common.Address { return v.address }

// Admin returns the vault admin.
func (v *Vault) Admin() common.Address { return v.admin }

// Market returns the lending market allowed to seize.
func (v *Vault) Market() common.Address { return v.market }

// Bridge returns the authorized rebalance-bridge counterparty.
func (v *Vault) Bridge() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bridge
}

// OwnerOf returns the depositor that owns a custodied position.
func (v *Vault) OwnerOf(id uint64) (common.Address, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	owner, ok := v.owners[id]
	return owner, ok
}

// UserTokens returns a copy of an owner's position list.
func (v *Vault) UserTokens(owner common.Address) []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]uint64, len(v.userTokens[owner]))
	copy(out, v.userTokens[owner])
	return out
}

// UserTokensMax returns the per-owner position limit.
func (v *Vault) UserTokensMax() int { return v.userTokensMax }

// DepositsPaused reports whether new deposits are paused.
func (v *Vault) DepositsPaused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.depositsPaused
}

// PeripheryPaused reports whether non-withdrawal operations are paused.
func (v *Vault) PeripheryPaused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.peripheryPaused
}

// SetUserTokensMax updates the per-owner position limit.
func (v *Vault) SetUserTokensMax(caller common.Address, max int) error {
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.mu.Lock()
	v.userTokensMax = max
	v.mu.Unlock()
	v.logger.Info("user tokens max set", zap.Int("max", max))
	return nil
}

// SetBridge updates the authorized rebalance-bridge counterparty.
func (v *Vault) SetBridge(caller, bridge common.Address) error {
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.mu.Lock()
	v.bridge = bridge
	v.mu.Unlock()
	v.logger.Info("bridge set", zap.String("bridge", bridge.Hex()))
	return nil
}

// PauseDeposits toggles the deposit pause flag.
func (v *Vault) PauseDeposits(ctx context.Context, caller common.Address, paused bool) error {
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.mu.Lock()
	v.depositsPaused = paused
	v.mu.Unlock()
	v.record(ctx, model.Event{Kind: model.EventPause, Asset: "deposits", Paused: &paused})
	return nil
}

// PausePeriphery toggles the pause flag for non-withdrawal operations.
func (v *Vault) PausePeriphery(ctx context.Context, caller common.Address, paused bool) error {
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.mu.Lock()
	v.peripheryPaused = paused
	v.mu.Unlock()
	v.record(ctx, model.Event{Kind: model.EventPause, Asset: "periphery", Paused: &paused})
	return nil
}

// enter marks the start of a unit of work, rejecting re-entrant invocation.
func (v *Vault) enter() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.entered {
		return ErrReentrancy
	}
	v.entered = true
	return nil
}

func (v *Vault) leave() {
	v.mu.Lock()
	v.entered = false
	v.mu.Unlock()
}

// record stamps and emits an audit event. Sink failures are logged rather
// than surfaced: the custody transition has already committed.
func (v *Vault) record(ctx context.Context, event model.Event) {
	v.mu.Lock()
	v.seq++
	event.Seq = v.seq
	v.mu.Unlock()
	event.Timestamp = v.now()

	if err := v.recorder.Record(ctx, event); err != nil {
		v.logger.Warn("audit event dropped",
			zap.String("kind", string(event.Kind)),
			zap.Uint64("seq", event.Seq),
			zap.Error(err),
		)
	}
}

func bigStr(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

// checkDeadline enforces the expiry embedded in range-migration parameters.
// A zero deadline means no expiry.
func (v *Vault) checkDeadline(deadline uint64) error {
	if deadline != 0 && v.now() > deadline {
		return ErrExpired
	}
	return nil
}

func (v *Vault) requireOwner(caller common.Address, id uint64) error {
	owner, ok := v.OwnerOf(id)
	if !ok || owner != caller {
		return ErrNotOwner
	}
	return nil
}

func (v *Vault) requireLiquid(ctx context.Context, account common.Address) error {
	liquid, err := v.marketV.IsAccountLiquid(ctx, account)
	if err != nil {
		return err
	}
	if !liquid {
		return ErrAccountNotLiquid
	}
	return nil
}
