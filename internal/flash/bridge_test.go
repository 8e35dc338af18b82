package flash

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/model"
	"lpcustody/internal/oracle"
	"lpcustody/internal/swap"
	"lpcustody/internal/univ3"
	"lpcustody/internal/vault"
)

var (
	bridgeAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	lenderAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	tokenA     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	tokenC     = common.HexToAddress("0x0000000000000000000000000000000000000003")
	poolAddr   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	debtMarket = common.HexToAddress("0x00000000000000000000000000000000000000dd")
)

const poolFee = 3000

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
	if b.balance(token, from).Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %s", token.Hex())
	}
	b.balances[token][from].Sub(b.balances[token][from], amount)
	b.credit(token, to, amount)
	return nil
}

type fakePosition struct {
	state   model.PositionState
	amount0 *big.Int
	amount1 *big.Int
}

type fakePositions struct {
	bank  *fakeBank
	items map[uint64]*fakePosition
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
	return nil, nil, fmt.Errorf("not used by the bridge")
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

func (f *fakePositions) Mint(_ context.Context, _ vault.MintParams) (uint64, *big.Int, *big.Int, *big.Int, error) {
	return 0, nil, nil, nil, fmt.Errorf("not used by the bridge")
}

func (f *fakePositions) Burn(_ context.Context, _ uint64) error {
	return fmt.Errorf("not used by the bridge")
}

func (f *fakePositions) Transfer(_ context.Context, _ uint64, _ common.Address) error {
	return fmt.Errorf("not used by the bridge")
}

type fakeRouter struct {
	bank *fakeBank
	leak func()
}

func (r *fakeRouter) ExactInput(ctx context.Context, path swap.Path, payer, recipient common.Address, amountIn, amountOutMin *big.Int) (*big.Int, error) {
	if err := r.bank.Transfer(ctx, path.First(), payer, poolAddr, amountIn); err != nil {
		return nil, err
	}
	r.bank.credit(path.Last(), recipient, amountIn)
	if r.leak != nil {
		r.leak()
	}
	return new(big.Int).Set(amountIn), nil
}

type fakeMarket struct {
	bank        *fakeBank
	underlyings map[common.Address]common.Address
	borrowErr   error
	borrowed    *big.Int
}

func (m *fakeMarket) IsListed(market common.Address) bool {
	_, ok := m.underlyings[market]
	return ok
}

func (m *fakeMarket) Underlying(market common.Address) (common.Address, error) {
	u, ok := m.underlyings[market]
	if !ok {
		return common.Address{}, fmt.Errorf("market %s not listed", market.Hex())
	}
	return u, nil
}

func (m *fakeMarket) IsAccountLiquid(_ context.Context, _ common.Address) (bool, error) {
	return true, nil
}

func (m *fakeMarket) IsSeizeAllowed(_ context.Context, _, _ common.Address) bool { return true }

func (m *fakeMarket) RepayOnBehalf(_ context.Context, _, _, _ common.Address, _ *big.Int) error {
	return fmt.Errorf("not used by the bridge")
}

func (m *fakeMarket) BorrowOnBehalf(_ context.Context, market, _, recipient common.Address, amount *big.Int) error {
	if m.borrowErr != nil {
		return m.borrowErr
	}
	u, err := m.Underlying(market)
	if err != nil {
		return err
	}
	m.bank.credit(u, recipient, amount)
	m.borrowed = new(big.Int).Set(amount)
	return nil
}

type fakePools struct{}

func (fakePools) State(_ context.Context, _ common.Address) (oracle.PoolState, error) {
	return oracle.PoolState{
		SqrtPriceX96:         new(big.Int).Set(univ3.Q96),
		Tick:                 0,
		FeeGrowthGlobal0X128: new(big.Int),
		FeeGrowthGlobal1X128: new(big.Int),
	}, nil
}

func (fakePools) TickGrowth(_ context.Context, _ common.Address, _ int32) (univ3.TickGrowth, error) {
	return univ3.TickGrowth{FeeGrowthOutside0X128: new(big.Int), FeeGrowthOutside1X128: new(big.Int)}, nil
}

func (fakePools) TickCumulatives(_ context.Context, _ common.Address, _ uint32) (int64, int64, error) {
	return 0, 0, nil
}

func (fakePools) Tokens(_ context.Context, _ common.Address) (common.Address, common.Address, error) {
	return tokenA, tokenB, nil
}

type fakeCustody struct {
	owners map[uint64]common.Address
	paused bool
}

func (c *fakeCustody) Address() common.Address { return vaultAddr }
func (c *fakeCustody) OwnerOf(id uint64) (common.Address, bool) {
	owner, ok := c.owners[id]
	return owner, ok
}
func (c *fakeCustody) PeripheryPaused() bool { return c.paused }

// fakeLender credits the advance and fires the callback synchronously, the
// way the real advance provider does inside one unit of work.
type fakeLender struct {
	bank   *fakeBank
	bridge *Bridge
	// premium is one basis point of the advance per unit configured here.
	premiumBps int64
}

func (l *fakeLender) Address() common.Address { return lenderAddr }

func (l *fakeLender) premium(amount *big.Int) *big.Int {
	p := new(big.Int).Mul(amount, big.NewInt(l.premiumBps))
	return p.Div(p, big.NewInt(10_000))
}

func (l *fakeLender) Advance(ctx context.Context, asset common.Address, amount *big.Int, payload []byte) error {
	l.bank.credit(asset, bridgeAddr, amount)
	premium := l.premium(amount)
	if err := l.bridge.FlashFocusCall(ctx, lenderAddr, asset, amount, premium, payload); err != nil {
		return err
	}
	owed := new(big.Int).Add(amount, premium)
	if l.bank.balance(asset, lenderAddr).Cmp(owed) < 0 {
		return fmt.Errorf("advance not repaid")
	}
	return nil
}

type harness struct {
	bridge    *Bridge
	bank      *fakeBank
	positions *fakePositions
	router    *fakeRouter
	market    *fakeMarket
	custody   *fakeCustody
	lender    *fakeLender
}

func newHarness() *harness {
	bank := newFakeBank()
	positions := &fakePositions{bank: bank, items: make(map[uint64]*fakePosition)}
	router := &fakeRouter{bank: bank}
	market := &fakeMarket{bank: bank, underlyings: map[common.Address]common.Address{debtMarket: tokenA}}
	custody := &fakeCustody{owners: make(map[uint64]common.Address)}
	lender := &fakeLender{bank: bank, premiumBps: 9}

	bridge := New(bridgeAddr, Deps{
		Lender:    lender,
		Custody:   custody,
		Positions: positions,
		Router:    router,
		Market:    market,
		Bank:      bank,
		Pools:     fakePools{},
	}, nil)
	lender.bridge = bridge

	return &harness{bridge: bridge, bank: bank, positions: positions, router: router, market: market, custody: custody, lender: lender}
}

func TestFlashFocus(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.positions.add(1, -6932, 6932, 4000, 4000, 0, 0)
	h.custody.owners[1] = alice

	err := h.bridge.FlashFocus(ctx, alice, FocusParams{
		PositionID: 1,
		Asset:      tokenA,
		Amount:     big.NewInt(1000),
		DebtMarket: debtMarket,
	})
	if err != nil {
		t.Fatalf("flash focus: %v", err)
	}

	pos, _ := h.positions.Position(ctx, 1)
	// The full advance lands as liquidity: half swapped at 1:1, all used.
	if pos.Liquidity.Cmp(big.NewInt(9000)) != 0 {
		t.Fatalf("liquidity = %s; want 9000", pos.Liquidity)
	}
	owed := big.NewInt(1000)
	owed.Add(owed, h.lender.premium(big.NewInt(1000)))
	if got := h.bank.balance(tokenA, lenderAddr); got.Cmp(owed) != 0 {
		t.Fatalf("lender repaid %s; want %s", got, owed)
	}
	if h.market.borrowed == nil || h.market.borrowed.Cmp(owed) != 0 {
		t.Fatalf("borrowed = %v; want %s", h.market.borrowed, owed)
	}
	// The vault's own balance never moves.
	if got := h.bank.balance(tokenA, vaultAddr); got.Sign() != 0 {
		t.Fatalf("vault balance = %s; want 0", got)
	}
}

func TestFlashFocusMergesFees(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.positions.add(1, -6932, 6932, 4000, 4000, 300, 100)
	h.custody.owners[1] = alice

	err := h.bridge.FlashFocus(ctx, alice, FocusParams{
		PositionID: 1,
		Asset:      tokenA,
		Amount:     big.NewInt(600),
		DebtMarket: debtMarket,
	})
	if err != nil {
		t.Fatalf("flash focus: %v", err)
	}
	pos, _ := h.positions.Position(ctx, 1)
	if pos.TokensOwed0.Sign() != 0 || pos.TokensOwed1.Sign() != 0 {
		t.Fatalf("fees not merged: owed = %s / %s", pos.TokensOwed0, pos.TokensOwed1)
	}
	// 600 advance + 400 fees all end up as liquidity.
	if pos.Liquidity.Cmp(big.NewInt(9000)) != 0 {
		t.Fatalf("liquidity = %s; want 9000", pos.Liquidity)
	}
}

func TestFlashFocusGuards(t *testing.T) {
	ctx := context.Background()
	params := FocusParams{PositionID: 1, Asset: tokenA, Amount: big.NewInt(100), DebtMarket: debtMarket}

	t.Run("not owner", func(t *testing.T) {
		h := newHarness()
		h.positions.add(1, -6932, 6932, 100, 100, 0, 0)
		h.custody.owners[1] = alice
		if err := h.bridge.FlashFocus(ctx, bob, params); !errors.Is(err, vault.ErrNotOwner) {
			t.Fatalf("err = %v; want ErrNotOwner", err)
		}
	})

	t.Run("periphery paused", func(t *testing.T) {
		h := newHarness()
		h.positions.add(1, -6932, 6932, 100, 100, 0, 0)
		h.custody.owners[1] = alice
		h.custody.paused = true
		if err := h.bridge.FlashFocus(ctx, alice, params); !errors.Is(err, vault.ErrPeripheryPaused) {
			t.Fatalf("err = %v; want ErrPeripheryPaused", err)
		}
	})

	t.Run("market not listed", func(t *testing.T) {
		h := newHarness()
		h.positions.add(1, -6932, 6932, 100, 100, 0, 0)
		h.custody.owners[1] = alice
		bad := params
		bad.DebtMarket = common.HexToAddress("0x9999")
		if err := h.bridge.FlashFocus(ctx, alice, bad); !errors.Is(err, vault.ErrMarketNotListed) {
			t.Fatalf("err = %v; want ErrMarketNotListed", err)
		}
	})

	t.Run("underlying mismatch", func(t *testing.T) {
		h := newHarness()
		h.positions.add(1, -6932, 6932, 100, 100, 0, 0)
		h.custody.owners[1] = alice
		bad := params
		bad.Asset = tokenB
		if err := h.bridge.FlashFocus(ctx, alice, bad); !errors.Is(err, vault.ErrUnderlyingMismatch) {
			t.Fatalf("err = %v; want ErrUnderlyingMismatch", err)
		}
	})
}

func TestFlashFocusCallGuards(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.positions.add(1, -6932, 6932, 100, 100, 0, 0)
	h.custody.owners[1] = alice

	raw := []byte(`{"owner":"` + alice.Hex() + `","position_id":1,"asset":"` + tokenA.Hex() + `","amount":100}`)
	if err := h.bridge.FlashFocusCall(ctx, bob, tokenA, big.NewInt(100), big.NewInt(0), raw); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("err = %v; want ErrUnauthorizedCaller", err)
	}
	// Lender identity alone is not enough without a pending authorization.
	if err := h.bridge.FlashFocusCall(ctx, lenderAddr, tokenA, big.NewInt(100), big.NewInt(0), raw); !errors.Is(err, ErrUnauthorizedAction) {
		t.Fatalf("err = %v; want ErrUnauthorizedAction", err)
	}
}

func TestFlashFocusInvalidAsset(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.positions.add(1, -6932, 6932, 4000, 4000, 0, 0)
	h.custody.owners[1] = alice
	other := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	h.market.underlyings[other] = tokenC

	badPath := swap.Single(tokenC, poolFee, tokenB)
	err := h.bridge.FlashFocus(ctx, alice, FocusParams{
		PositionID: 1,
		Asset:      tokenC,
		Amount:     big.NewInt(100),
		DebtMarket: other,
		Path:       badPath,
	})
	if !errors.Is(err, ErrInvalidAssetConfig) {
		t.Fatalf("err = %v; want ErrInvalidAssetConfig", err)
	}
}

func TestFlashFocusBorrowFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.positions.add(1, -6932, 6932, 4000, 4000, 0, 0)
	h.custody.owners[1] = alice
	h.market.borrowErr = errors.New("borrow cap reached")

	err := h.bridge.FlashFocus(ctx, alice, FocusParams{
		PositionID: 1,
		Asset:      tokenA,
		Amount:     big.NewInt(1000),
		DebtMarket: debtMarket,
	})
	if !errors.Is(err, ErrBorrowFailed) {
		t.Fatalf("err = %v; want ErrBorrowFailed", err)
	}
}

func TestFlashFocusVaultNeutralViolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.positions.add(1, -6932, 6932, 4000, 4000, 0, 0)
	h.custody.owners[1] = alice
	// A leaky router that deposits the advanced asset into the vault mid-swap
	// breaks neutrality.
	h.router.leak = func() { h.bank.credit(tokenA, vaultAddr, big.NewInt(1)) }

	err := h.bridge.FlashFocus(ctx, alice, FocusParams{
		PositionID: 1,
		Asset:      tokenA,
		Amount:     big.NewInt(1000),
		DebtMarket: debtMarket,
	})
	if !errors.Is(err, ErrVaultNotNeutral) {
		t.Fatalf("err = %v; want ErrVaultNotNeutral", err)
	}
}
