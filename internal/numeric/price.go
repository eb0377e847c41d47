package numeric

import "github.com/shopspring/decimal"

// tickBase is the per-tick price granularity: price = 1.0001^tick.
var tickBase = decimal.RequireFromString("1.0001")

// q192 is 2^192, the divisor that unpacks a squared Q64.96 fixed-point value.
var q192 = decimal.NewFromInt(2).Pow(decimal.NewFromInt(192))

// PriceFromTick computes 1.0001^tick, the price of token1 in token0 terms at
// a tick index, by binary exponentiation. Negative ticks go through the safe
// reciprocal. Intermediate products are rounded to PricePrecision so the cost
// stays bounded across the full protocol tick range (about ±887272).
func PriceFromTick(tick int32) decimal.Decimal {
	if tick == 0 {
		return one
	}

	exp := uint64(tick)
	if tick < 0 {
		exp = uint64(-int64(tick))
	}

	result := one
	square := tickBase
	for exp > 0 {
		if exp&1 == 1 {
			result = roundPrice(result.Mul(square))
		}
		exp >>= 1
		if exp > 0 {
			square = roundPrice(square.Mul(square))
		}
	}

	if tick < 0 {
		return SafeDiv(one, result)
	}
	return result
}

// PricesFromSqrtPriceX96 unpacks a Q64.96 square-root price into the
// human-readable price pair: price0 is token0 in token1 terms adjusted for
// the decimal difference, price1 its safe reciprocal.
func PricesFromSqrtPriceX96(sqrtPriceX96 decimal.Decimal, decimals0, decimals1 uint8) (decimal.Decimal, decimal.Decimal) {
	num := sqrtPriceX96.Mul(sqrtPriceX96)
	price0 := SafeDiv(num.Shift(int32(decimals0)-int32(decimals1)), q192)
	price1 := SafeDiv(one, price0)
	return price0, price1
}

func roundPrice(value decimal.Decimal) decimal.Decimal {
	if -value.Exponent() <= PricePrecision {
		return value
	}
	return value.Round(PricePrecision)
}
