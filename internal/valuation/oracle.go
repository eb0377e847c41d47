package valuation

import (
	"strings"

	"github.com/shopspring/decimal"

	"poolscope/internal/model"
)

// PoolSource exposes the reconstructed pool set the oracle derives prices
// from. The in-memory entity store satisfies it.
type PoolSource interface {
	Pool(address string) (model.Pool, bool)
	Pools() []model.Pool
}

// Config anchors the derivation: the wrapped base-asset token and the pool
// whose price defines the base asset's USD value.
type Config struct {
	WrappedNative string
	// USDAnchorPool pairs the wrapped native token with a stablecoin; its
	// price is read as the base asset's USD price. Empty disables the USD
	// derivation (the bundle stays at zero).
	USDAnchorPool string
	// USDStableIsToken0 marks which side of the anchor pool the stablecoin
	// sits on.
	USDStableIsToken0 bool
}

// Oracle derives base-asset token prices by reading the price of the deepest
// pool that pairs a token with the wrapped native asset. It is deliberately
// simpler than a full pricing-graph traversal: tokens without a direct native
// pair derive to zero, which the safe-division rule treats as "not yet
// priced".
type Oracle struct {
	cfg    Config
	source PoolSource
}

func NewOracle(cfg Config, source PoolSource) *Oracle {
	return &Oracle{cfg: cfg, source: source}
}

// TokenNativePrice returns the token's price denominated in the base asset.
func (o *Oracle) TokenNativePrice(token model.Token) decimal.Decimal {
	if sameAddress(token.Address, o.cfg.WrappedNative) {
		return decimal.NewFromInt(1)
	}

	best := decimal.Zero
	bestLiquidity := decimal.Decimal{}
	found := false
	for _, pool := range o.source.Pools() {
		price, ok := nativePriceFromPool(pool, token.Address, o.cfg.WrappedNative)
		if !ok {
			continue
		}
		if !found || pool.Liquidity.GreaterThan(bestLiquidity) {
			best = price
			bestLiquidity = pool.Liquidity
			found = true
		}
	}
	return best
}

// NativeUSDPrice reads the USD anchor pool's current price.
func (o *Oracle) NativeUSDPrice() decimal.Decimal {
	if o.cfg.USDAnchorPool == "" {
		return decimal.Zero
	}
	pool, ok := o.source.Pool(o.cfg.USDAnchorPool)
	if !ok {
		return decimal.Zero
	}
	// The anchor's price in stable-per-native terms is price0 when the
	// native token is token0 (price0 is token1 units per token0), and
	// price1 otherwise.
	if o.cfg.USDStableIsToken0 {
		return pool.Token1Price
	}
	return pool.Token0Price
}

func nativePriceFromPool(pool model.Pool, token, wrappedNative string) (decimal.Decimal, bool) {
	switch {
	case sameAddress(pool.Token0, token) && sameAddress(pool.Token1, wrappedNative):
		// price0 is token1 (native) units per token0.
		return pool.Token0Price, true
	case sameAddress(pool.Token1, token) && sameAddress(pool.Token0, wrappedNative):
		return pool.Token1Price, true
	default:
		return decimal.Decimal{}, false
	}
}

func sameAddress(a, b string) bool {
	return b != "" && strings.EqualFold(a, b)
}
