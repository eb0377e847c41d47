package state

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"poolscope/internal/model"
)

const (
	testFactory = "0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865"
	testPool    = "0x1111111111111111111111111111111111111111"
	testToken0  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testToken1  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	// sqrtPriceX96 encoding a raw price of exactly 1 (2^96).
	unitSqrtPrice = "79228162514264337593543950336"
)

type stubValuer struct {
	native decimal.Decimal
	usd    decimal.Decimal
}

func (v stubValuer) TokenNativePrice(model.Token) decimal.Decimal { return v.native }
func (v stubValuer) NativeUSDPrice() decimal.Decimal              { return v.usd }

type stubResolver struct {
	metas map[string]model.TokenMeta
}

func (r stubResolver) Resolve(_ context.Context, address string) (model.TokenMeta, error) {
	meta, ok := r.metas[address]
	if !ok {
		return model.TokenMeta{}, errors.New("decimals unresolved")
	}
	return meta, nil
}

func poolCreatedEvent() model.PoolCreatedEventData {
	return model.PoolCreatedEventData{
		Token0:     testToken0,
		Token1:     testToken1,
		Fee:        3000,
		Pool:       testPool,
		Token0Meta: &model.TokenMeta{Address: testToken0, Symbol: "AAA", Name: "Token A", Decimals: 18},
		Token1Meta: &model.TokenMeta{Address: testToken1, Symbol: "BBB", Name: "Token B", Decimals: 18},
	}
}

func newTestEngine(t *testing.T, valuer Valuer) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewEngine(store, valuer, nil, nil), store
}

// applier turns a handler result into a fatal test failure unless applied.
type applier struct {
	t *testing.T
}

func (a applier) apply(outcome Outcome, err error) {
	a.t.Helper()
	if err != nil {
		a.t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeApplied {
		a.t.Fatalf("outcome %s, want applied", outcome)
	}
}

func TestPoolCreated(t *testing.T) {
	engine, store := newTestEngine(t, nil)

	outcome, err := engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent())
	applier{t}.apply(outcome, err)

	pool, ok := store.Pool(testPool)
	if !ok {
		t.Fatalf("pool not persisted")
	}
	if pool.Tick != nil {
		t.Fatalf("new pool should have no active tick")
	}
	if !pool.Liquidity.IsZero() || !pool.SqrtPrice.IsZero() {
		t.Fatalf("new pool should start at zero: %+v", pool)
	}
	if pool.TickSpacing != 60 {
		t.Fatalf("tick spacing %d, want 60", pool.TickSpacing)
	}

	if _, ok := store.Token(testToken0); !ok {
		t.Fatalf("token0 not persisted")
	}
	if _, ok := store.Token(testToken1); !ok {
		t.Fatalf("token1 not persisted")
	}
	bundle, ok := store.Bundle()
	if !ok {
		t.Fatalf("bundle not created on first pool")
	}
	if !bundle.NativeUSD.IsZero() {
		t.Fatalf("fresh bundle should have zero USD price")
	}
}

func TestPoolCreatedUnknownFeeTierRejected(t *testing.T) {
	engine, store := newTestEngine(t, nil)

	ev := poolCreatedEvent()
	ev.Fee = 2500
	outcome, err := engine.OnPoolCreated(context.Background(), testFactory, ev)
	if err == nil || outcome != OutcomeRejected {
		t.Fatalf("unknown fee tier must be rejected loudly, got %s, %v", outcome, err)
	}
	if _, ok := store.Pool(testPool); ok {
		t.Fatalf("rejected pool must not be persisted")
	}
	if engine.Stats().Rejected != 1 {
		t.Fatalf("rejection not counted: %+v", engine.Stats())
	}
}

func TestPoolCreatedUnresolvedDecimalsLeavesNothing(t *testing.T) {
	store := NewMemoryStore()
	resolver := stubResolver{metas: map[string]model.TokenMeta{
		testToken0: {Address: testToken0, Symbol: "AAA", Decimals: 18},
		// testToken1 deliberately missing: decimals unresolved.
	}}
	engine := NewEngine(store, nil, resolver, nil)

	ev := poolCreatedEvent()
	ev.Token0Meta = nil
	ev.Token1Meta = nil
	outcome, err := engine.OnPoolCreated(context.Background(), testFactory, ev)
	if err == nil || outcome != OutcomeRejected {
		t.Fatalf("unresolved decimals must reject, got %s, %v", outcome, err)
	}

	if _, ok := store.Pool(testPool); ok {
		t.Fatalf("no pool should be persisted")
	}
	if _, ok := store.Token(testToken0); ok {
		t.Fatalf("no token should be persisted")
	}
	if _, ok := store.Bundle(); ok {
		t.Fatalf("no bundle should be persisted")
	}
}

func TestInitialize(t *testing.T) {
	valuer := stubValuer{native: decimal.NewFromInt(2), usd: decimal.NewFromInt(3000)}
	engine, store := newTestEngine(t, valuer)
	applier{t}.apply(engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent()))

	outcome, err := engine.OnInitialize(testPool, model.InitializeEventData{SqrtPriceX96: unitSqrtPrice, Tick: 0})
	applier{t}.apply(outcome, err)

	pool, _ := store.Pool(testPool)
	if pool.Tick == nil || *pool.Tick != 0 {
		t.Fatalf("active tick not set: %+v", pool.Tick)
	}
	if !pool.Token0Price.Equal(decimal.NewFromInt(1)) || !pool.Token1Price.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unit price pair expected: %s / %s", pool.Token0Price, pool.Token1Price)
	}

	token0, _ := store.Token(testToken0)
	if !token0.DerivedNative.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("derived price not refreshed: %s", token0.DerivedNative)
	}
	bundle, _ := store.Bundle()
	if !bundle.NativeUSD.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("bundle USD price not refreshed: %s", bundle.NativeUSD)
	}
}

func TestInitializeMissingPoolSkipped(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	outcome, err := engine.OnInitialize(testPool, model.InitializeEventData{SqrtPriceX96: unitSqrtPrice})
	if err != nil || outcome != OutcomeSkipped {
		t.Fatalf("missing pool should skip, got %s, %v", outcome, err)
	}
	if engine.Stats().Skipped[SkipMissingPool] != 1 {
		t.Fatalf("skip not counted: %+v", engine.Stats())
	}
}

func TestMintStraddleRule(t *testing.T) {
	engine, store := newTestEngine(t, nil)
	applier{t}.apply(engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent()))
	applier{t}.apply(engine.OnInitialize(testPool, model.InitializeEventData{SqrtPriceX96: unitSqrtPrice, Tick: 5}))

	// [0, 10) straddles tick 5: active liquidity grows.
	applier{t}.apply(engine.OnMint(testPool, model.MintEventData{
		TickLower: 0, TickUpper: 10, Amount: "1000", Amount0: "0", Amount1: "0",
	}))
	pool, _ := store.Pool(testPool)
	if !pool.Liquidity.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("straddling mint should raise liquidity: %s", pool.Liquidity)
	}

	// [10, 20) is entirely above tick 5: liquidity untouched, ticks updated.
	applier{t}.apply(engine.OnMint(testPool, model.MintEventData{
		TickLower: 10, TickUpper: 20, Amount: "500", Amount0: "0", Amount1: "0",
	}))
	pool, _ = store.Pool(testPool)
	if !pool.Liquidity.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("out-of-range mint must not change active liquidity: %s", pool.Liquidity)
	}

	tick10, ok := store.Tick(testPool, 10)
	if !ok {
		t.Fatalf("tick 10 not created")
	}
	// Tick 10 is the upper bound of the first mint and the lower bound of the
	// second: gross accumulates both, nets cancel to -500.
	if !tick10.LiquidityGross.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("tick 10 gross: %s", tick10.LiquidityGross)
	}
	if !tick10.LiquidityNet.Equal(decimal.NewFromInt(-500)) {
		t.Fatalf("tick 10 net: %s", tick10.LiquidityNet)
	}
}

func TestMintBeforeInitialize(t *testing.T) {
	engine, store := newTestEngine(t, nil)
	applier{t}.apply(engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent()))

	// Some deployments emit Mint before Initialize; the range cannot straddle
	// an unset tick but the ledger still records the position.
	applier{t}.apply(engine.OnMint(testPool, model.MintEventData{
		TickLower: -60, TickUpper: 60, Amount: "1000", Amount0: "100", Amount1: "100",
	}))

	pool, _ := store.Pool(testPool)
	if !pool.Liquidity.IsZero() {
		t.Fatalf("liquidity must stay zero before Initialize: %s", pool.Liquidity)
	}
	if _, ok := store.Tick(testPool, -60); !ok {
		t.Fatalf("lower tick not created")
	}
}

func TestMintBurnRoundTrip(t *testing.T) {
	engine, store := newTestEngine(t, nil)
	applier{t}.apply(engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent()))
	applier{t}.apply(engine.OnInitialize(testPool, model.InitializeEventData{SqrtPriceX96: unitSqrtPrice, Tick: 0}))

	mint := model.MintEventData{
		TickLower: -60, TickUpper: 60, Amount: "1000",
		Amount0: "500000000000000000", Amount1: "500000000000000000",
	}
	applier{t}.apply(engine.OnMint(testPool, mint))
	burn := model.BurnEventData{
		TickLower: mint.TickLower, TickUpper: mint.TickUpper, Amount: mint.Amount,
		Amount0: mint.Amount0, Amount1: mint.Amount1,
	}
	applier{t}.apply(engine.OnBurn(testPool, burn))

	pool, _ := store.Pool(testPool)
	if !pool.Liquidity.IsZero() {
		t.Fatalf("liquidity should return to zero: %s", pool.Liquidity)
	}
	if !pool.Reserve0.IsZero() || !pool.Reserve1.IsZero() {
		t.Fatalf("reserves should return to zero: %s / %s", pool.Reserve0, pool.Reserve1)
	}

	// The tick records survive with zeroed liquidity; the ledger never
	// deletes them.
	for _, index := range []int32{-60, 60} {
		tick, ok := store.Tick(testPool, index)
		if !ok {
			t.Fatalf("tick %d should remain after full burn", index)
		}
		if !tick.LiquidityGross.IsZero() || !tick.LiquidityNet.IsZero() {
			t.Fatalf("tick %d liquidity should net to zero: %+v", index, tick)
		}
	}
}

func TestBurnMissingTickSkipped(t *testing.T) {
	engine, store := newTestEngine(t, nil)
	applier{t}.apply(engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent()))

	outcome, err := engine.OnBurn(testPool, model.BurnEventData{
		TickLower: -60, TickUpper: 60, Amount: "1000", Amount0: "0", Amount1: "0",
	})
	if err != nil || outcome != OutcomeSkipped {
		t.Fatalf("burn of unknown ticks should skip, got %s, %v", outcome, err)
	}
	if engine.Stats().Skipped[SkipMissingTick] != 1 {
		t.Fatalf("skip not counted: %+v", engine.Stats())
	}

	pool, _ := store.Pool(testPool)
	if !pool.Reserve0.IsZero() {
		t.Fatalf("skipped burn must not touch reserves: %s", pool.Reserve0)
	}
}

func TestSwapReplacesStateWholesale(t *testing.T) {
	engine, store := newTestEngine(t, nil)
	applier{t}.apply(engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent()))
	applier{t}.apply(engine.OnInitialize(testPool, model.InitializeEventData{SqrtPriceX96: unitSqrtPrice, Tick: 0}))
	applier{t}.apply(engine.OnMint(testPool, model.MintEventData{
		TickLower: -60, TickUpper: 60, Amount: "1000",
		Amount0: "500000000000000000", Amount1: "500000000000000000",
	}))

	applier{t}.apply(engine.OnSwap(testPool, model.SwapEventData{
		Amount0:      "1000000000000000000",
		Amount1:      "-900000000000000000",
		SqrtPriceX96: "79267784519130042428790663799",
		Liquidity:    "1000",
		Tick:         100,
	}))

	pool, _ := store.Pool(testPool)
	if pool.Tick == nil || *pool.Tick != 100 {
		t.Fatalf("swap must replace the active tick: %+v", pool.Tick)
	}
	// Liquidity is taken verbatim from the event even when numerically equal
	// to the previous value.
	if !pool.Liquidity.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("liquidity: %s", pool.Liquidity)
	}
	if !pool.SqrtPrice.Equal(decimal.RequireFromString("79267784519130042428790663799")) {
		t.Fatalf("sqrt price: %s", pool.SqrtPrice)
	}

	// 0.5 + 1.0 paid in, 0.5 - 0.9 received out.
	if !pool.Reserve0.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("reserve0: %s", pool.Reserve0)
	}
	if !pool.Reserve1.Equal(decimal.RequireFromString("-0.4")) {
		t.Fatalf("reserve1: %s", pool.Reserve1)
	}
	if pool.Token0Price.IsZero() || pool.Token1Price.IsZero() {
		t.Fatalf("price pair not recomputed")
	}
}

func TestTVLUsesBothTokens(t *testing.T) {
	valuer := stubValuer{native: decimal.NewFromInt(2), usd: decimal.NewFromInt(3000)}
	engine, store := newTestEngine(t, valuer)
	applier{t}.apply(engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent()))
	applier{t}.apply(engine.OnInitialize(testPool, model.InitializeEventData{SqrtPriceX96: unitSqrtPrice, Tick: 0}))

	applier{t}.apply(engine.OnMint(testPool, model.MintEventData{
		TickLower: -60, TickUpper: 60, Amount: "1000",
		Amount0: "3000000000000000000", Amount1: "1000000000000000000",
	}))

	pool, _ := store.Pool(testPool)
	// (3 + 1) tokens, each derived at 2 native.
	if !pool.TVLNative.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("TVL should value both reserves: %s", pool.TVLNative)
	}
}

func TestStatsAccounting(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	applier{t}.apply(engine.OnPoolCreated(context.Background(), testFactory, poolCreatedEvent()))

	_, _ = engine.OnSwap("0x2222222222222222222222222222222222222222", model.SwapEventData{})
	_, _ = engine.OnInitialize("0x2222222222222222222222222222222222222222", model.InitializeEventData{})

	stats := engine.Stats()
	if stats.Applied != 1 {
		t.Fatalf("applied count: %d", stats.Applied)
	}
	if stats.TotalSkipped() != 2 || stats.Skipped[SkipMissingPool] != 2 {
		t.Fatalf("skip accounting: %+v", stats)
	}
}
