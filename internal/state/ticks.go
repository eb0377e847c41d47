package state

import (
	"fmt"

	"github.com/shopspring/decimal"

	"poolscope/internal/model"
	"poolscope/internal/numeric"
)

// FeeTierToTickSpacing maps a fee tier in hundredths of a basis point to its
// fixed tick spacing. Any other tier is a configuration error: defaulting the
// spacing would corrupt all later tick math for the pool, so pool creation
// must be rejected instead.
func FeeTierToTickSpacing(feeTier uint32) (int32, error) {
	switch feeTier {
	case 100:
		return 1, nil
	case 500:
		return 10, nil
	case 3000:
		return 60, nil
	case 10000:
		return 200, nil
	default:
		return 0, fmt.Errorf("unexpected fee tier %d", feeTier)
	}
}

// GetOrCreateTick returns the tick record for (pool, index), creating and
// persisting a zero-liquidity record seeded with the tick's price pair on
// first reference. Repeated calls for the same key return the stored record.
func GetOrCreateTick(store EntityStore, poolAddress string, index int32) model.Tick {
	if tick, ok := store.Tick(poolAddress, index); ok {
		return tick
	}

	price0 := numeric.PriceFromTick(index)
	tick := model.Tick{
		PoolAddress:    poolAddress,
		Index:          index,
		LiquidityGross: decimal.Zero,
		LiquidityNet:   decimal.Zero,
		Price0:         price0,
		Price1:         numeric.SafeDiv(decimal.NewFromInt(1), price0),
	}
	store.SaveTick(tick)
	return tick
}

// applyLiquidityDelta folds a signed position amount into a boundary tick.
// Mint passes the positive amount, Burn the negated one. Net liquidity is the
// delta applied to pool liquidity when price crosses the tick upward, so the
// upper bound subtracts.
func applyLiquidityDelta(tick model.Tick, upper bool, amount decimal.Decimal) model.Tick {
	tick.LiquidityGross = tick.LiquidityGross.Add(amount)
	if upper {
		tick.LiquidityNet = tick.LiquidityNet.Sub(amount)
	} else {
		tick.LiquidityNet = tick.LiquidityNet.Add(amount)
	}
	return tick
}
