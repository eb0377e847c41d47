package numeric

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricePrecision is the number of fractional digits kept by divisions and by
// rounded intermediate products. All derived prices in the system carry at
// most this many fractional digits.
const PricePrecision = 38

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

// SafeDiv divides a by b at PricePrecision fractional digits. A zero divisor
// yields zero: tokens without a counter-price yet are a normal state, not an
// error.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return zero
	}
	return a.DivRound(b, PricePrecision)
}

// ConvertTokenToDecimal rescales a raw integer token amount by the token's
// decimal precision. The shift is exact.
func ConvertTokenToDecimal(raw decimal.Decimal, decimals uint8) decimal.Decimal {
	return raw.Shift(-int32(decimals))
}

// ParseAmount parses a base-10 integer or decimal amount string. An empty
// string parses as zero, matching how absent event fields decode.
func ParseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return zero, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return zero, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return parsed, nil
}
