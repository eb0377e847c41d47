package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolscope/internal/model"
	"poolscope/internal/numeric"
)

// Valuer derives base-asset prices from the currently known pool state. The
// graph traversal behind it is the oracle's own business; the engine only
// calls it at the points where prices may have moved.
type Valuer interface {
	TokenNativePrice(token model.Token) decimal.Decimal
	NativeUSDPrice() decimal.Decimal
}

// MetadataResolver supplies ERC20 metadata for a token address. An error
// means the token's decimals could not be determined, which aborts the pool
// creation that needed them.
type MetadataResolver interface {
	Resolve(ctx context.Context, address string) (model.TokenMeta, error)
}

// Engine applies pool lifecycle events to the entity store, one event at a
// time. Every handler either fully applies the event or leaves the store
// untouched; loads of entities that should exist but don't produce a counted
// skip rather than an error.
type Engine struct {
	store    EntityStore
	valuer   Valuer
	metadata MetadataResolver
	logger   *zap.Logger

	mu      sync.Mutex
	applied uint64
	reject  uint64
	skips   map[SkipReason]uint64
}

func NewEngine(store EntityStore, valuer Valuer, metadata MetadataResolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		valuer:   valuer,
		metadata: metadata,
		logger:   logger,
		skips:    make(map[SkipReason]uint64),
	}
}

// Stats returns a copy of the engine's event accounting.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	skipped := make(map[SkipReason]uint64, len(e.skips))
	for reason, n := range e.skips {
		skipped[reason] = n
	}
	return Stats{Applied: e.applied, Rejected: e.reject, Skipped: skipped}
}

// OnPoolCreated registers a pool and its tokens. Token metadata comes from
// the event record when the decoder embedded it, otherwise from the resolver;
// if either token's decimals cannot be determined the event is abandoned and
// nothing is persisted. The Bundle singleton is created on the first pool.
func (e *Engine) OnPoolCreated(ctx context.Context, factoryAddress string, ev model.PoolCreatedEventData) (Outcome, error) {
	tickSpacing, err := FeeTierToTickSpacing(ev.Fee)
	if err != nil {
		return e.rejected(fmt.Errorf("pool %s: %w", ev.Pool, err))
	}

	token0, err := e.loadOrResolveToken(ctx, ev.Token0, ev.Token0Meta)
	if err != nil {
		return e.rejected(fmt.Errorf("pool %s token0: %w", ev.Pool, err))
	}
	token1, err := e.loadOrResolveToken(ctx, ev.Token1, ev.Token1Meta)
	if err != nil {
		return e.rejected(fmt.Errorf("pool %s token1: %w", ev.Pool, err))
	}

	pool := model.Pool{
		Address:     ev.Pool,
		Token0:      token0.Address,
		Token1:      token1.Address,
		FeeTier:     ev.Fee,
		TickSpacing: tickSpacing,
		SqrtPrice:   decimal.Zero,
		Liquidity:   decimal.Zero,
	}

	if _, ok := e.store.Bundle(); !ok {
		e.store.SaveBundle(model.Bundle{NativeUSD: decimal.Zero})
	}
	e.store.SavePool(pool)
	e.store.SaveToken(token0)
	e.store.SaveToken(token1)

	e.logger.Debug("pool created",
		zap.String("factory", factoryAddress),
		zap.String("pool", ev.Pool),
		zap.Uint32("fee_tier", ev.Fee),
		zap.Int32("tick_spacing", tickSpacing),
	)
	return e.done()
}

// OnInitialize sets the pool's starting price and tick, computes the
// canonical price pair, and runs the valuation hooks: both tokens' derived
// base-asset prices and the bundle's USD price may depend on this pool.
func (e *Engine) OnInitialize(poolAddress string, ev model.InitializeEventData) (Outcome, error) {
	pool, ok := e.store.Pool(poolAddress)
	if !ok {
		return e.skipped(SkipMissingPool, "Initialize", poolAddress)
	}
	token0, ok := e.store.Token(pool.Token0)
	if !ok {
		return e.skipped(SkipMissingToken, "Initialize", poolAddress)
	}
	token1, ok := e.store.Token(pool.Token1)
	if !ok {
		return e.skipped(SkipMissingToken, "Initialize", poolAddress)
	}
	bundle, ok := e.store.Bundle()
	if !ok {
		return e.skipped(SkipMissingBundle, "Initialize", poolAddress)
	}

	sqrtPrice, err := numeric.ParseAmount(ev.SqrtPriceX96)
	if err != nil {
		return e.rejected(fmt.Errorf("initialize %s: %w", poolAddress, err))
	}

	tick := ev.Tick
	pool.Tick = &tick
	pool.SqrtPrice = sqrtPrice
	pool.Token0Price, pool.Token1Price = numeric.PricesFromSqrtPriceX96(sqrtPrice, token0.Decimals, token1.Decimals)
	e.store.SavePool(pool)

	if e.valuer != nil {
		token0.DerivedNative = e.valuer.TokenNativePrice(token0)
		token1.DerivedNative = e.valuer.TokenNativePrice(token1)
	}
	e.store.SaveToken(token0)
	e.store.SaveToken(token1)

	if e.valuer != nil {
		bundle.NativeUSD = e.valuer.NativeUSDPrice()
	}
	e.store.SaveBundle(bundle)

	return e.done()
}

// OnMint adds a position's token amounts to the pool reserves, bumps active
// liquidity when the range straddles the current tick, and applies the
// symmetric gross/net deltas to the (lazily created) boundary ticks.
func (e *Engine) OnMint(poolAddress string, ev model.MintEventData) (Outcome, error) {
	pool, ok := e.store.Pool(poolAddress)
	if !ok {
		return e.skipped(SkipMissingPool, "Mint", poolAddress)
	}
	token0, ok := e.store.Token(pool.Token0)
	if !ok {
		return e.skipped(SkipMissingToken, "Mint", poolAddress)
	}
	token1, ok := e.store.Token(pool.Token1)
	if !ok {
		return e.skipped(SkipMissingToken, "Mint", poolAddress)
	}

	amount, err := numeric.ParseAmount(ev.Amount)
	if err != nil {
		return e.rejected(fmt.Errorf("mint %s: %w", poolAddress, err))
	}
	amount0, err := numeric.ParseAmount(ev.Amount0)
	if err != nil {
		return e.rejected(fmt.Errorf("mint %s: %w", poolAddress, err))
	}
	amount1, err := numeric.ParseAmount(ev.Amount1)
	if err != nil {
		return e.rejected(fmt.Errorf("mint %s: %w", poolAddress, err))
	}

	pool.Reserve0 = pool.Reserve0.Add(numeric.ConvertTokenToDecimal(amount0, token0.Decimals))
	pool.Reserve1 = pool.Reserve1.Add(numeric.ConvertTokenToDecimal(amount1, token1.Decimals))

	if straddlesActiveTick(pool, ev.TickLower, ev.TickUpper) {
		pool.Liquidity = pool.Liquidity.Add(amount)
	}

	lower := GetOrCreateTick(e.store, pool.Address, ev.TickLower)
	upper := GetOrCreateTick(e.store, pool.Address, ev.TickUpper)
	e.store.SaveTick(applyLiquidityDelta(lower, false, amount))
	e.store.SaveTick(applyLiquidityDelta(upper, true, amount))

	pool.TVLNative = valueLocked(pool, token0, token1)
	e.store.SavePool(pool)

	return e.done()
}

// OnBurn is the mirror of OnMint with negated deltas. The boundary ticks must
// already exist; records stay in place even when their liquidity nets back to
// zero.
func (e *Engine) OnBurn(poolAddress string, ev model.BurnEventData) (Outcome, error) {
	pool, ok := e.store.Pool(poolAddress)
	if !ok {
		return e.skipped(SkipMissingPool, "Burn", poolAddress)
	}
	token0, ok := e.store.Token(pool.Token0)
	if !ok {
		return e.skipped(SkipMissingToken, "Burn", poolAddress)
	}
	token1, ok := e.store.Token(pool.Token1)
	if !ok {
		return e.skipped(SkipMissingToken, "Burn", poolAddress)
	}
	lower, ok := e.store.Tick(pool.Address, ev.TickLower)
	if !ok {
		return e.skipped(SkipMissingTick, "Burn", poolAddress)
	}
	upper, ok := e.store.Tick(pool.Address, ev.TickUpper)
	if !ok {
		return e.skipped(SkipMissingTick, "Burn", poolAddress)
	}

	amount, err := numeric.ParseAmount(ev.Amount)
	if err != nil {
		return e.rejected(fmt.Errorf("burn %s: %w", poolAddress, err))
	}
	amount0, err := numeric.ParseAmount(ev.Amount0)
	if err != nil {
		return e.rejected(fmt.Errorf("burn %s: %w", poolAddress, err))
	}
	amount1, err := numeric.ParseAmount(ev.Amount1)
	if err != nil {
		return e.rejected(fmt.Errorf("burn %s: %w", poolAddress, err))
	}

	pool.Reserve0 = pool.Reserve0.Sub(numeric.ConvertTokenToDecimal(amount0, token0.Decimals))
	pool.Reserve1 = pool.Reserve1.Sub(numeric.ConvertTokenToDecimal(amount1, token1.Decimals))

	if straddlesActiveTick(pool, ev.TickLower, ev.TickUpper) {
		pool.Liquidity = pool.Liquidity.Sub(amount)
	}

	delta := amount.Neg()
	e.store.SaveTick(applyLiquidityDelta(lower, false, delta))
	e.store.SaveTick(applyLiquidityDelta(upper, true, delta))

	pool.TVLNative = valueLocked(pool, token0, token1)
	e.store.SavePool(pool)

	return e.done()
}

// OnSwap replaces the pool's active liquidity, tick, and packed price with
// the post-swap values reported by the event, folds the signed token deltas
// into the reserves, and recomputes TVL and the canonical price pair.
func (e *Engine) OnSwap(poolAddress string, ev model.SwapEventData) (Outcome, error) {
	pool, ok := e.store.Pool(poolAddress)
	if !ok {
		return e.skipped(SkipMissingPool, "Swap", poolAddress)
	}
	token0, ok := e.store.Token(pool.Token0)
	if !ok {
		return e.skipped(SkipMissingToken, "Swap", poolAddress)
	}
	token1, ok := e.store.Token(pool.Token1)
	if !ok {
		return e.skipped(SkipMissingToken, "Swap", poolAddress)
	}

	amount0, err := numeric.ParseAmount(ev.Amount0)
	if err != nil {
		return e.rejected(fmt.Errorf("swap %s: %w", poolAddress, err))
	}
	amount1, err := numeric.ParseAmount(ev.Amount1)
	if err != nil {
		return e.rejected(fmt.Errorf("swap %s: %w", poolAddress, err))
	}
	sqrtPrice, err := numeric.ParseAmount(ev.SqrtPriceX96)
	if err != nil {
		return e.rejected(fmt.Errorf("swap %s: %w", poolAddress, err))
	}
	liquidity, err := numeric.ParseAmount(ev.Liquidity)
	if err != nil {
		return e.rejected(fmt.Errorf("swap %s: %w", poolAddress, err))
	}

	tick := ev.Tick
	pool.Liquidity = liquidity
	pool.Tick = &tick
	pool.SqrtPrice = sqrtPrice

	pool.Reserve0 = pool.Reserve0.Add(numeric.ConvertTokenToDecimal(amount0, token0.Decimals))
	pool.Reserve1 = pool.Reserve1.Add(numeric.ConvertTokenToDecimal(amount1, token1.Decimals))

	pool.TVLNative = valueLocked(pool, token0, token1)
	pool.Token0Price, pool.Token1Price = numeric.PricesFromSqrtPriceX96(sqrtPrice, token0.Decimals, token1.Decimals)
	e.store.SavePool(pool)

	return e.done()
}

// straddlesActiveTick reports whether [lower, upper) contains the pool's
// active tick. Lower bound inclusive, upper exclusive. Uninitialized pools
// never straddle.
func straddlesActiveTick(pool model.Pool, lower, upper int32) bool {
	return pool.Tick != nil && lower <= *pool.Tick && upper > *pool.Tick
}

func valueLocked(pool model.Pool, token0, token1 model.Token) decimal.Decimal {
	return pool.Reserve0.Mul(token0.DerivedNative).Add(pool.Reserve1.Mul(token1.DerivedNative))
}

func (e *Engine) loadOrResolveToken(ctx context.Context, address string, embedded *model.TokenMeta) (model.Token, error) {
	if token, ok := e.store.Token(address); ok {
		return token, nil
	}
	if embedded != nil {
		return model.Token{
			Address:  address,
			Symbol:   embedded.Symbol,
			Name:     embedded.Name,
			Decimals: embedded.Decimals,
		}, nil
	}
	if e.metadata == nil {
		return model.Token{}, fmt.Errorf("no metadata source for token %s", address)
	}
	meta, err := e.metadata.Resolve(ctx, address)
	if err != nil {
		return model.Token{}, fmt.Errorf("resolve metadata: %w", err)
	}
	return model.Token{
		Address:  address,
		Symbol:   meta.Symbol,
		Name:     meta.Name,
		Decimals: meta.Decimals,
	}, nil
}

func (e *Engine) done() (Outcome, error) {
	e.mu.Lock()
	e.applied++
	e.mu.Unlock()
	return OutcomeApplied, nil
}

func (e *Engine) skipped(reason SkipReason, event, poolAddress string) (Outcome, error) {
	e.mu.Lock()
	e.skips[reason]++
	e.mu.Unlock()
	e.logger.Warn("event skipped",
		zap.String("event", event),
		zap.String("pool", poolAddress),
		zap.String("reason", string(reason)),
	)
	return OutcomeSkipped, nil
}

func (e *Engine) rejected(err error) (Outcome, error) {
	e.mu.Lock()
	e.reject++
	e.mu.Unlock()
	return OutcomeRejected, err
}
