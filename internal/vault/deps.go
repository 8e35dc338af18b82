package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/model"
	"lpcustody/internal/swap"
)

// PositionManager is the pool/position primitive the vault custodies
// positions on. Decreased liquidity accrues to the position's tokensOwed
// balances until collected.
type PositionManager interface {
	Position(ctx context.Context, id uint64) (model.PositionState, error)
	DecreaseLiquidity(ctx context.Context, id uint64, liquidity, amount0Min, amount1Min *big.Int) (amount0, amount1 *big.Int, err error)
	IncreaseLiquidity(ctx context.Context, id uint64, amount0, amount1, amount0Min, amount1Min *big.Int) (liquidity, used0, used1 *big.Int, err error)
	Collect(ctx context.Context, id uint64, recipient common.Address, amount0Max, amount1Max *big.Int) (amount0, amount1 *big.Int, err error)
	Mint(ctx context.Context, params MintParams) (id uint64, liquidity, used0, used1 *big.Int, err error)
	Burn(ctx context.Context, id uint64) error
	Transfer(ctx context.Context, id uint64, to common.Address) error
}

// MintParams describes a new position to open.
type MintParams struct {
	Pool       common.Address
	TickLower  int32
	TickUpper  int32
	Amount0    *big.Int
	Amount1    *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Recipient  common.Address
}

// SwapRouter executes exact-input swaps funded by the caller-side account.
type SwapRouter interface {
	ExactInput(ctx context.Context, path swap.Path, payer, recipient common.Address, amountIn, amountOutMin *big.Int) (*big.Int, error)
}

// MarketView is the lending-market collaborator consulted for solvency,
// listing, and repayment decisions.
type MarketView interface {
	IsListed(market common.Address) bool
	Underlying(market common.Address) (common.Address, error)
	IsAccountLiquid(ctx context.Context, account common.Address) (bool, error)
	IsSeizeAllowed(ctx context.Context, liquidator, borrower common.Address) bool
	RepayOnBehalf(ctx context.Context, market, payer, borrower common.Address, amount *big.Int) error
	BorrowOnBehalf(ctx context.Context, market, borrower, recipient common.Address, amount *big.Int) error
}

// TokenBank moves fungible token balances between accounts.
type TokenBank interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error
}
