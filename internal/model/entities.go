package model

import "github.com/shopspring/decimal"

// Token is an ERC20 token referenced by at least one pool.
// DerivedNative is the token price denominated in the chain's base asset,
// maintained by the valuation hook.
type Token struct {
	Address       string          `json:"address"`
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Decimals      uint8           `json:"decimals"`
	DerivedNative decimal.Decimal `json:"derived_native"`
}

// Pool is the reconstructed state of a single V3 pool.
// Tick is nil until the pool's Initialize event has been applied.
type Pool struct {
	Address     string `json:"address"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	FeeTier     uint32 `json:"fee_tier"`
	TickSpacing int32  `json:"tick_spacing"`

	Tick      *int32          `json:"tick,omitempty"`
	SqrtPrice decimal.Decimal `json:"sqrt_price"`
	Liquidity decimal.Decimal `json:"liquidity"`

	Reserve0    decimal.Decimal `json:"reserve0"`
	Reserve1    decimal.Decimal `json:"reserve1"`
	TVLNative   decimal.Decimal `json:"tvl_native"`
	Token0Price decimal.Decimal `json:"token0_price"`
	Token1Price decimal.Decimal `json:"token1_price"`
}

// Tick is the liquidity ledger entry for one (pool, tick index) pair.
// Records are created on first reference by a Mint and never deleted; a tick
// whose liquidity nets back to zero stays as a historical row.
type Tick struct {
	PoolAddress    string          `json:"pool_address"`
	Index          int32           `json:"tick_idx"`
	LiquidityGross decimal.Decimal `json:"liquidity_gross"`
	LiquidityNet   decimal.Decimal `json:"liquidity_net"`
	Price0         decimal.Decimal `json:"price0"`
	Price1         decimal.Decimal `json:"price1"`
}

// Bundle is the singleton valuation context: the USD price of the base asset.
type Bundle struct {
	NativeUSD decimal.Decimal `json:"native_usd"`
}
