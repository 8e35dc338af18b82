package vault

import "errors"

var (
	// Access control.
	ErrNotAdmin  = errors.New("caller is not the vault admin")
	ErrNotOwner  = errors.New("caller does not own the deposited position")
	ErrNotMarket = errors.New("caller is not the lending market")

	// State guards.
	ErrDepositsPaused       = errors.New("deposits are paused")
	ErrPeripheryPaused      = errors.New("periphery operations are paused")
	ErrTooManyPositions     = errors.New("owner is at the position limit")
	ErrUnsupportedPool      = errors.New("pool is not accepted as collateral")
	ErrAccountNotLiquid     = errors.New("market reports the account as not liquid")
	ErrInsolventWithdrawal  = errors.New("withdrawal would leave the account undercollateralized")
	ErrInsufficientLiquidity = errors.New("position holds insufficient liquidity")
	ErrInsufficientFees     = errors.New("position holds insufficient uncollected fees")
	ErrReentrancy           = errors.New("operation already in progress")

	// Integrity.
	ErrSlippage     = errors.New("deposited amount below minimum")
	ErrExpired      = errors.New("operation deadline expired")
	ErrBadRecipient = errors.New("cannot withdraw to the vault")

	// Value conservation.
	ErrMarketNotListed       = errors.New("debt market is not listed")
	ErrUnderlyingMismatch    = errors.New("underlying does not match the debt market asset")
	ErrInsufficientRepayment = errors.New("proceeds do not cover the repay amount")
	ErrRepaymentRejected     = errors.New("market rejected the repayment")
	ErrNotOwnedByBorrower    = errors.New("position is not owned by the borrower")
	ErrSeizeNotAllowed       = errors.New("market does not allow the seizure")
	ErrSweepLivePosition     = errors.New("positions tied to a depositor cannot be swept")
)
