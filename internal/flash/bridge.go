package flash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpcustody/internal/model"
	"lpcustody/internal/oracle"
	"lpcustody/internal/storage"
	"lpcustody/internal/swap"
	"lpcustody/internal/vault"
)

var (
	// ErrUnauthorizedCaller is returned when the callback is invoked by
	// anything but the registered advance provider.
	ErrUnauthorizedCaller = errors.New("callback caller is not the advance provider")
	// ErrUnauthorizedAction is returned when no matching pending
	// authorization exists for the callback.
	ErrUnauthorizedAction = errors.New("no pending authorization for this action")
	// ErrInvalidAssetConfig is returned when the advanced asset is neither a
	// pool token nor convertible through the supplied path.
	ErrInvalidAssetConfig = errors.New("advanced asset is not usable for this position")
	// ErrBorrowFailed is returned when the debt market declines the borrow
	// that funds the advance repayment.
	ErrBorrowFailed = errors.New("borrow to repay the advance failed")
	// ErrVaultNotNeutral is returned when a flash flow would change the
	// vault's own balance of the advanced asset.
	ErrVaultNotNeutral = errors.New("vault balance of the advanced asset changed")
)

// Lender is the capital-advance provider. Advance must deliver the amount to
// the borrower and invoke its callback synchronously before returning.
type Lender interface {
	Address() common.Address
	Advance(ctx context.Context, asset common.Address, amount *big.Int, payload []byte) error
}

// CustodyView is the slice of the vault the bridge consults. *vault.Vault
// satisfies it.
type CustodyView interface {
	Address() common.Address
	OwnerOf(id uint64) (common.Address, bool)
	PeripheryPaused() bool
}

// FocusParams describes a leveraged rebalance: advance Amount of Asset,
// merge it into the position, and fund the repayment by borrowing from
// DebtMarket on the owner's behalf.
type FocusParams struct {
	PositionID uint64
	Asset      common.Address
	Amount     *big.Int
	DebtMarket common.Address
	// Path converts Asset into the position's token0 when Asset is not a
	// pool token itself.
	Path swap.Path
}

type payload struct {
	Owner      common.Address `json:"owner"`
	PositionID uint64         `json:"position_id"`
	Asset      common.Address `json:"asset"`
	Amount     *big.Int       `json:"amount"`
	DebtMarket common.Address `json:"debt_market"`
	Path       swap.Path      `json:"path"`
}

type pendingAuth struct {
	owner      common.Address
	positionID uint64
}

// Deps bundles the bridge's collaborators.
type Deps struct {
	Lender    Lender
	Custody   CustodyView
	Positions vault.PositionManager
	Router    vault.SwapRouter
	Market    vault.MarketView
	Bank      vault.TokenBank
	Pools     oracle.PoolReader
	Recorder  storage.Recorder
}

// Bridge runs the flash-rebalance flow between the advance provider, the
// vault, and the lending market. It holds a single pending-authorization
// slot: one rebalance is in flight at a time.
type Bridge struct {
	address common.Address

	mu      sync.Mutex
	pending *pendingAuth
	seq     uint64

	lender    Lender
	custody   CustodyView
	positions vault.PositionManager
	router    vault.SwapRouter
	market    vault.MarketView
	bank      vault.TokenBank
	pools     oracle.PoolReader
	recorder  storage.Recorder
	logger    *zap.Logger
}

// New builds a Bridge with its own account identity.
func New(address common.Address, deps Deps, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = storage.Nop{}
	}
	return &Bridge{
		address:   address,
		lender:    deps.Lender,
		custody:   deps.Custody,
		positions: deps.Positions,
		router:    deps.Router,
		market:    deps.Market,
		bank:      deps.Bank,
		pools:     deps.Pools,
		recorder:  recorder,
		logger:    logger,
	}
}

// Address returns the bridge's own account identity.
func (b *Bridge) Address() common.Address { return b.address }

// FlashFocus authorizes and kicks off a leveraged rebalance for the caller's
// position. The pending authorization is cleared unconditionally before
// return, whether or not the advance succeeds.
func (b *Bridge) FlashFocus(ctx context.Context, caller common.Address, params FocusParams) error {
	if b.custody.PeripheryPaused() {
		return vault.ErrPeripheryPaused
	}
	owner, ok := b.custody.OwnerOf(params.PositionID)
	if !ok || owner != caller {
		return vault.ErrNotOwner
	}
	if !b.market.IsListed(params.DebtMarket) {
		return vault.ErrMarketNotListed
	}
	underlying, err := b.market.Underlying(params.DebtMarket)
	if err != nil {
		return err
	}
	if underlying != params.Asset {
		return vault.ErrUnderlyingMismatch
	}

	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return ErrUnauthorizedAction
	}
	b.pending = &pendingAuth{owner: caller, positionID: params.PositionID}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.pending = nil
		b.mu.Unlock()
	}()

	raw, err := json.Marshal(payload{
		Owner:      caller,
		PositionID: params.PositionID,
		Asset:      params.Asset,
		Amount:     params.Amount,
		DebtMarket: params.DebtMarket,
		Path:       params.Path,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	b.logger.Info("flash focus requested",
		zap.Uint64("position", params.PositionID),
		zap.String("owner", caller.Hex()),
		zap.String("asset", params.Asset.Hex()),
		zap.String("amount", params.Amount.String()),
	)
	return b.lender.Advance(ctx, params.Asset, params.Amount, raw)
}

// FlashFocusCall is the advance provider's callback. It merges the advanced
// amount with the position's standing fees, deposits the result as
// liquidity, and repays amount+premium with funds borrowed from the debt
// market on the owner's behalf.
func (b *Bridge) FlashFocusCall(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, raw []byte) error {
	if caller != b.lender.Address() {
		return ErrUnauthorizedCaller
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	b.mu.Lock()
	authorized := b.pending != nil && b.pending.owner == p.Owner && b.pending.positionID == p.PositionID
	b.mu.Unlock()
	if !authorized {
		return ErrUnauthorizedAction
	}
	if asset != p.Asset || amount.Cmp(p.Amount) != 0 {
		return ErrUnauthorizedAction
	}

	vaultBefore, err := b.bank.BalanceOf(ctx, asset, b.custody.Address())
	if err != nil {
		return err
	}

	pos, err := b.positions.Position(ctx, p.PositionID)
	if err != nil {
		return fmt.Errorf("position %d: %w", p.PositionID, err)
	}

	// Bring the advance into pool-token terms.
	have0, have1 := new(big.Int), new(big.Int)
	switch asset {
	case pos.Token0:
		have0.Set(amount)
	case pos.Token1:
		have1.Set(amount)
	default:
		if err := p.Path.Validate(asset, pos.Token0); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAssetConfig, err)
		}
		out, err := b.router.ExactInput(ctx, p.Path, b.address, b.address, amount, new(big.Int))
		if err != nil {
			return fmt.Errorf("convert advance: %w", err)
		}
		have0.Set(out)
	}

	// Merge the position's standing fees into the deposit.
	fee0, fee1, err := b.positions.Collect(ctx, p.PositionID, b.address, maxUint128, maxUint128)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	have0.Add(have0, fee0)
	have1.Add(have1, fee1)

	state, err := b.pools.State(ctx, pos.Pool)
	if err != nil {
		return fmt.Errorf("pool %s: %w", pos.Pool.Hex(), err)
	}
	want0, want1, err := vault.SplitForRange(state.SqrtPriceX96, pos.TickLower, pos.TickUpper, have0, have1)
	if err != nil {
		return err
	}
	bal0, bal1 := have0, have1
	switch {
	case have0.Cmp(want0) > 0:
		in := new(big.Int).Sub(have0, want0)
		out, err := b.router.ExactInput(ctx, swap.Single(pos.Token0, pos.Fee, pos.Token1), b.address, b.address, in, new(big.Int))
		if err != nil {
			return fmt.Errorf("swap token0 excess: %w", err)
		}
		bal0 = new(big.Int).Sub(have0, in)
		bal1 = new(big.Int).Add(have1, out)
	case have1.Cmp(want1) > 0:
		in := new(big.Int).Sub(have1, want1)
		out, err := b.router.ExactInput(ctx, swap.Single(pos.Token1, pos.Fee, pos.Token0), b.address, b.address, in, new(big.Int))
		if err != nil {
			return fmt.Errorf("swap token1 excess: %w", err)
		}
		bal0 = new(big.Int).Add(have0, out)
		bal1 = new(big.Int).Sub(have1, in)
	}

	liquidity, used0, used1, err := b.positions.IncreaseLiquidity(ctx, p.PositionID, bal0, bal1, new(big.Int), new(big.Int))
	if err != nil {
		return fmt.Errorf("increase liquidity: %w", err)
	}

	// Fund the repayment with a borrow against the freshly grown position.
	owed := new(big.Int).Add(amount, premium)
	if err := b.market.BorrowOnBehalf(ctx, p.DebtMarket, p.Owner, b.address, owed); err != nil {
		return fmt.Errorf("%w: %v", ErrBorrowFailed, err)
	}
	if err := b.bank.Transfer(ctx, asset, b.address, b.lender.Address(), owed); err != nil {
		return fmt.Errorf("repay advance: %w", err)
	}

	// Return deposit dust to the owner.
	if dust := new(big.Int).Sub(bal0, used0); dust.Sign() > 0 {
		if err := b.bank.Transfer(ctx, pos.Token0, b.address, p.Owner, dust); err != nil {
			return err
		}
	}
	if dust := new(big.Int).Sub(bal1, used1); dust.Sign() > 0 {
		if err := b.bank.Transfer(ctx, pos.Token1, b.address, p.Owner, dust); err != nil {
			return err
		}
	}

	vaultAfter, err := b.bank.BalanceOf(ctx, asset, b.custody.Address())
	if err != nil {
		return err
	}
	if vaultBefore.Cmp(vaultAfter) != 0 {
		return ErrVaultNotNeutral
	}

	b.logger.Info("flash focus executed",
		zap.Uint64("position", p.PositionID),
		zap.String("owner", p.Owner.Hex()),
		zap.String("advanced", amount.String()),
		zap.String("premium", premium.String()),
		zap.String("liquidity", liquidity.String()),
	)
	b.record(ctx, model.Event{
		Kind:         model.EventFlashFocus,
		Owner:        p.Owner.Hex(),
		Counterparty: p.DebtMarket.Hex(),
		PositionID:   p.PositionID,
		Amount0:      used0.String(),
		Amount1:      used1.String(),
		Liquidity:    liquidity.String(),
		Asset:        asset.Hex(),
	})
	return nil
}

func (b *Bridge) record(ctx context.Context, event model.Event) {
	b.mu.Lock()
	b.seq++
	event.Seq = b.seq
	b.mu.Unlock()
	if err := b.recorder.Record(ctx, event); err != nil {
		b.logger.Warn("audit event dropped",
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
