package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceFromTickIdentity(t *testing.T) {
	if !PriceFromTick(0).Equal(decimal.NewFromInt(1)) {
		t.Fatalf("tick 0 should price at exactly 1, got %s", PriceFromTick(0))
	}
}

func TestPriceFromTickSingleStep(t *testing.T) {
	want := decimal.RequireFromString("1.0001")
	if !PriceFromTick(1).Equal(want) {
		t.Fatalf("tick 1 mismatch: %s", PriceFromTick(1))
	}
}

func TestPriceFromTickSmallExponentExact(t *testing.T) {
	// 1.0001^3 stays exact because no intermediate exceeds PricePrecision.
	want := decimal.RequireFromString("1.0001").
		Mul(decimal.RequireFromString("1.0001")).
		Mul(decimal.RequireFromString("1.0001"))
	if !PriceFromTick(3).Equal(want.Round(PricePrecision)) {
		t.Fatalf("tick 3 mismatch: %s != %s", PriceFromTick(3), want)
	}
}

func TestPriceFromTickReciprocal(t *testing.T) {
	tolerance := decimal.New(1, -12)
	for _, tick := range []int32{1, 10, 60, 200, 887, 12345, 200000} {
		product := PriceFromTick(tick).Mul(PriceFromTick(-tick))
		diff := product.Sub(decimal.NewFromInt(1)).Abs()
		if diff.GreaterThan(tolerance) {
			t.Fatalf("tick %d: price(t)*price(-t) = %s, off by %s", tick, product, diff)
		}
	}
}

func TestPriceFromTickMonotonic(t *testing.T) {
	prev := PriceFromTick(-100)
	for _, tick := range []int32{-10, 0, 10, 100, 1000} {
		current := PriceFromTick(tick)
		if !current.GreaterThan(prev) {
			t.Fatalf("price not increasing at tick %d: %s <= %s", tick, current, prev)
		}
		prev = current
	}
}

func TestPricesFromSqrtPriceX96Unit(t *testing.T) {
	// sqrtPriceX96 == 2^96 encodes a raw price of exactly 1.
	sqrt := decimal.NewFromInt(2).Pow(decimal.NewFromInt(96))

	price0, price1 := PricesFromSqrtPriceX96(sqrt, 18, 18)
	if !price0.Equal(decimal.NewFromInt(1)) || !price1.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unit sqrt price mismatch: %s / %s", price0, price1)
	}
}

func TestPricesFromSqrtPriceX96DecimalAdjustment(t *testing.T) {
	sqrt := decimal.NewFromInt(2).Pow(decimal.NewFromInt(96))

	// A 6-decimal token0 against an 18-decimal token1 scales price0 by 1e-12.
	price0, price1 := PricesFromSqrtPriceX96(sqrt, 6, 18)
	if !price0.Equal(decimal.New(1, -12)) {
		t.Fatalf("price0 mismatch: %s", price0)
	}
	if !price1.Equal(decimal.New(1, 12)) {
		t.Fatalf("price1 mismatch: %s", price1)
	}
}

func TestPricesFromSqrtPriceX96Zero(t *testing.T) {
	price0, price1 := PricesFromSqrtPriceX96(decimal.Zero, 18, 18)
	if !price0.IsZero() || !price1.IsZero() {
		t.Fatalf("zero sqrt price should yield zero pair, got %s / %s", price0, price1)
	}
}
