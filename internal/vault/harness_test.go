package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/model"
	"lpcustody/internal/oracle"
	"lpcustody/internal/swap"
	"lpcustody/internal/univ3"
)

var (
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	adminAddr  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	marketAddr = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	tokenA     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	poolAddr   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	debtMarket = common.HexToAddress("0x00000000000000000000000000000000000000dd")
)

const poolFee = 3000

// fakeBank is an in-memory token ledger.
type fakeBank struct {
	balances map[common.Address]map[common.Address]*big.Int
}

func newFakeBank() *fakeBank {
	return &fakeBank{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (b *fakeBank) credit(token, account common.Address, amount *big.Int) {
	if b.balances[token] == nil {
		b.balances[token] = make(map[common.Address]*big.Int)
	}
	if b.balances[token][account] == nil {
		b.balances[token][account] = new(big.Int)
	}
	b.balances[token][account].Add(b.balances[token][account], amount)
}

func (b *fakeBank) balance(token, account common.Address) *big.Int {
	if b.balances[token] == nil || b.balances[token][account] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.balances[token][account])
}

func (b *fakeBank) BalanceOf(_ context.Context, token, account common.Address) (*big.Int, error) {
	return b.balance(token, account), nil
}

func (b *fakeBank) Transfer(_ context.Context, token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer")
	}
	if b.balance(token, from).Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %s", token.Hex())
	}
	b.balances[token][from].Sub(b.balances[token][from], amount)
	b.credit(token, to, amount)
	return nil
}

// fakePosition carries the backing amounts its liquidity decomposes into.
type fakePosition struct {
	state   model.PositionState
	amount0 *big.Int
	amount1 *big.Int
}

type fakePositions struct {
	bank    *fakeBank
	nextID  uint64
	items   map[uint64]*fakePosition
	holders map[uint64]common.Address
}

func newFakePositions(bank *fakeBank) *fakePositions {
	return &fakePositions{bank: bank, nextID: 100, items: make(map[uint64]*fakePosition), holders: make(map[uint64]common.Address)}
}

func (f *fakePositions) add(id uint64, lower, upper int32, amount0, amount1, owed0, owed1 int64) {
	f.items[id] = &fakePosition{
		state: model.PositionState{
			ID: id, Pool: poolAddr, Token0: tokenA, Token1: tokenB, Fee: poolFee,
			TickLower: lower, TickUpper: upper,
			Liquidity:                big.NewInt(amount0 + amount1),
			FeeGrowthInside0LastX128: new(big.Int),
			FeeGrowthInside1LastX128: new(big.Int),
			TokensOwed0:              big.NewInt(owed0),
			TokensOwed1:              big.NewInt(owed1),
		},
		amount0: big.NewInt(amount0),
		amount1: big.NewInt(amount1),
	}
	f.holders[id] = vaultAddr
}

func (f *fakePositions) Position(_ context.Context, id uint64) (model.PositionState, error) {
	p, ok := f.items[id]
	if !ok {
		return model.PositionState{}, oracle.ErrUnknownPosition
	}
	state := p.state
	state.Liquidity = new(big.Int).Set(p.state.Liquidity)
	state.TokensOwed0 = new(big.Int).Set(p.state.TokensOwed0)
	state.TokensOwed1 = new(big.Int).Set(p.state.TokensOwed1)
	return state, nil
}

func (f *fakePositions) DecreaseLiquidity(_ context.Context, id uint64, liquidity, _, _ *big.Int) (*big.Int, *big.Int, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, nil, oracle.ErrUnknownPosition
	}
	if liquidity.Cmp(p.state.Liquidity) > 0 {
		return nil, nil, fmt.Errorf("burn exceeds liquidity")
	}
	d0 := new(big.Int).Mul(p.amount0, liquidity)
	d0.Div(d0, p.state.Liquidity)
	d1 := new(big.Int).Mul(p.amount1, liquidity)
	d1.Div(d1, p.state.Liquidity)
	p.amount0.Sub(p.amount0, d0)
	p.amount1.Sub(p.amount1, d1)
	p.state.Liquidity.Sub(p.state.Liquidity, liquidity)
	p.state.TokensOwed0.Add(p.state.TokensOwed0, d0)
	p.state.TokensOwed1.Add(p.state.TokensOwed1, d1)
	return d0, d1, nil
}

func (f *fakePositions) IncreaseLiquidity(_ context.Context, id uint64, amount0, amount1, _, _ *big.Int) (*big.Int, *big.Int, *big.Int, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, nil, nil, oracle.ErrUnknownPosition
	}
	minted := new(big.Int).Add(amount0, amount1)
	p.amount0.Add(p.amount0, amount0)
	p.amount1.Add(p.amount1, amount1)
	p.state.Liquidity.Add(p.state.Liquidity, minted)
	return minted, new(big.Int).Set(amount0), new(big.Int).Set(amount1), nil
}

func (f *fakePositions) Collect(_ context.Context, id uint64, recipient common.Address, amount0Max, amount1Max *big.Int) (*big.Int, *big.Int, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, nil, oracle.ErrUnknownPosition
	}
	got0 := new(big.Int).Set(p.state.TokensOwed0)
	if got0.Cmp(amount0Max) > 0 {
		got0.Set(amount0Max)
	}
	got1 := new(big.Int).Set(p.state.TokensOwed1)
	if got1.Cmp(amount1Max) > 0 {
		got1.Set(amount1Max)
	}
	p.state.TokensOwed0.Sub(p.state.TokensOwed0, got0)
	p.state.TokensOwed1.Sub(p.state.TokensOwed1, got1)
	f.bank.credit(tokenA, recipient, got0)
	f.bank.credit(tokenB, recipient, got1)
	return got0, got1, nil
}

func (f *fakePositions) Mint(_ context.Context, params MintParams) (uint64, *big.Int, *big.Int, *big.Int, error) {
	id := f.nextID
	f.nextID++
	liquidity := new(big.Int).Add(params.Amount0, params.Amount1)
	f.items[id] = &fakePosition{
		state: model.PositionState{
			ID: id, Pool: params.Pool, Token0: tokenA, Token1: tokenB, Fee: poolFee,
			TickLower: params.TickLower, TickUpper: params.TickUpper,
			Liquidity:                new(big.Int).Set(liquidity),
			FeeGrowthInside0LastX128: new(big.Int),
			FeeGrowthInside1LastX128: new(big.Int),
			TokensOwed0:              new(big.Int),
			TokensOwed1:              new(big.Int),
		},
		amount0: new(big.Int).Set(params.Amount0),
		amount1: new(big.Int).Set(params.Amount1),
	}
	f.holders[id] = params.Recipient
	return id, liquidity, new(big.Int).Set(params.Amount0), new(big.Int).Set(params.Amount1), nil
}

func (f *fakePositions) Burn(_ context.Context, id uint64) error {
	p, ok := f.items[id]
	if !ok {
		return oracle.ErrUnknownPosition
	}
	if p.state.Liquidity.Sign() != 0 {
		return fmt.Errorf("position %d still holds liquidity", id)
	}
	delete(f.items, id)
	delete(f.holders, id)
	return nil
}

func (f *fakePositions) Transfer(_ context.Context, id uint64, to common.Address) error {
	if _, ok := f.items[id]; !ok {
		return oracle.ErrUnknownPosition
	}
	f.holders[id] = to
	return nil
}

// fakeRouter swaps at a constant 1:1 price.
type fakeRouter struct {
	bank  *fakeBank
	calls int
}

func (r *fakeRouter) ExactInput(ctx context.Context, path swap.Path, payer, recipient common.Address, amountIn, amountOutMin *big.Int) (*big.Int, error) {
	if err := path.Validate(path.First(), path.Last()); err != nil {
		return nil, err
	}
	if err := r.bank.Transfer(ctx, path.First(), payer, poolAddr, amountIn); err != nil {
		return nil, err
	}
	out := new(big.Int).Set(amountIn)
	if out.Cmp(amountOutMin) < 0 {
		return nil, fmt.Errorf("router slippage")
	}
	r.bank.credit(path.Last(), recipient, out)
	r.calls++
	return out, nil
}

type repayCall struct {
	market, payer, borrower common.Address
	amount                  *big.Int
}

type fakeMarket struct {
	bank         *fakeBank
	listed       map[common.Address]bool
	underlyings  map[common.Address]common.Address
	illiquid     map[common.Address]bool
	seizeBlocked bool
	repayErr     error
	borrowErr    error
	repaid       []repayCall
	onLiquidity  func()
}

func newFakeMarket(bank *fakeBank) *fakeMarket {
	return &fakeMarket{
		bank:        bank,
		listed:      map[common.Address]bool{debtMarket: true},
		underlyings: map[common.Address]common.Address{debtMarket: tokenA},
		illiquid:    make(map[common.Address]bool),
	}
}

func (m *fakeMarket) IsListed(market common.Address) bool { return m.listed[market] }

func (m *fakeMarket) Underlying(market common.Address) (common.Address, error) {
	u, ok := m.underlyings[market]
	if !ok {
		return common.Address{}, fmt.Errorf("market %s not listed", market.Hex())
	}
	return u, nil
}

func (m *fakeMarket) IsAccountLiquid(_ context.Context, account common.Address) (bool, error) {
	if m.onLiquidity != nil {
		m.onLiquidity()
	}
	return !m.illiquid[account], nil
}

func (m *fakeMarket) IsSeizeAllowed(_ context.Context, _, _ common.Address) bool {
	return !m.seizeBlocked
}

func (m *fakeMarket) RepayOnBehalf(ctx context.Context, market, payer, borrower common.Address, amount *big.Int) error {
	if m.repayErr != nil {
		return m.repayErr
	}
	u, err := m.Underlying(market)
	if err != nil {
		return err
	}
	if err := m.bank.Transfer(ctx, u, payer, market, amount); err != nil {
		return err
	}
	m.repaid = append(m.repaid, repayCall{market: market, payer: payer, borrower: borrower, amount: new(big.Int).Set(amount)})
	return nil
}

func (m *fakeMarket) BorrowOnBehalf(_ context.Context, market, borrower, recipient common.Address, amount *big.Int) error {
	if m.borrowErr != nil {
		return m.borrowErr
	}
	u, err := m.Underlying(market)
	if err != nil {
		return err
	}
	m.bank.credit(u, recipient, amount)
	return nil
}

// fakePools serves a single pool pinned at tick zero unless reconfigured.
type fakePools struct {
	state oracle.PoolState
}

func newFakePools() *fakePools {
	return &fakePools{state: oracle.PoolState{
		SqrtPriceX96:         new(big.Int).Set(univ3.Q96),
		Tick:                 0,
		FeeGrowthGlobal0X128: new(big.Int),
		FeeGrowthGlobal1X128: new(big.Int),
	}}
}

func (f *fakePools) State(_ context.Context, pool common.Address) (oracle.PoolState, error) {
	if pool != poolAddr {
		return oracle.PoolState{}, fmt.Errorf("unknown pool %s", pool.Hex())
	}
	return f.state, nil
}

func (f *fakePools) TickGrowth(_ context.Context, _ common.Address, _ int32) (univ3.TickGrowth, error) {
	return univ3.TickGrowth{
		FeeGrowthOutside0X128: new(big.Int),
		FeeGrowthOutside1X128: new(big.Int),
	}, nil
}

func (f *fakePools) TickCumulatives(_ context.Context, _ common.Address, window uint32) (int64, int64, error) {
	return int64(f.state.Tick) * int64(window), 0, nil
}

func (f *fakePools) Tokens(_ context.Context, _ common.Address) (common.Address, common.Address, error) {
	return tokenA, tokenB, nil
}

type harness struct {
	vault     *Vault
	bank      *fakeBank
	positions *fakePositions
	router    *fakeRouter
	market    *fakeMarket
	pools     *fakePools
	oracle    *oracle.Oracle
}

func newHarness() *harness {
	bank := newFakeBank()
	positions := newFakePositions(bank)
	pools := newFakePools()
	market := newFakeMarket(bank)
	router := &fakeRouter{bank: bank}

	o := oracle.New(oracle.Config{Admin: adminAddr, Quote: tokenB, TwapWindow: 600}, pools, positions, nil)
	if err := o.AddAssets(adminAddr, []common.Address{tokenA}, []common.Address{poolAddr}); err != nil {
		panic(err)
	}

	v := New(
		Config{Address: vaultAddr, Admin: adminAddr, Market: marketAddr, UserTokensMax: 4},
		Deps{Positions: positions, Router: router, Market: market, Bank: bank, Oracle: o, Pools: pools},
		nil,
	)
	return &harness{vault: v, bank: bank, positions: positions, router: router, market: market, pools: pools, oracle: o}
}
