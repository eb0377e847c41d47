package valuation

import (
	"testing"

	"github.com/shopspring/decimal"

	"poolscope/internal/model"
	"poolscope/internal/state"
)

const (
	wnative = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc    = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	dai     = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	anchor  = "0x8888888888888888888888888888888888888888"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seededStore(t *testing.T) *state.MemoryStore {
	t.Helper()
	store := state.NewMemoryStore()

	// USDC/WNATIVE anchor pool: USDC is token0, so price0 is native per USDC.
	store.SavePool(model.Pool{
		Address:     anchor,
		Token0:      usdc,
		Token1:      wnative,
		Liquidity:   dec("5000"),
		Token0Price: dec("0.0004"),
		Token1Price: dec("2500"),
	})
	// A shallow DAI/WNATIVE pool and a deeper one with a different price.
	store.SavePool(model.Pool{
		Address:     "0x1111111111111111111111111111111111111111",
		Token0:      wnative,
		Token1:      dai,
		Liquidity:   dec("10"),
		Token0Price: dec("2000"),
		Token1Price: dec("0.0005"),
	})
	store.SavePool(model.Pool{
		Address:     "0x2222222222222222222222222222222222222222",
		Token0:      wnative,
		Token1:      dai,
		Liquidity:   dec("9000"),
		Token0Price: dec("2600"),
		Token1Price: dec("0.00038461538461538462"),
	})
	return store
}

func TestWrappedNativePricesAtOne(t *testing.T) {
	oracle := NewOracle(Config{WrappedNative: wnative}, seededStore(t))
	price := oracle.TokenNativePrice(model.Token{Address: wnative})
	if !price.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("wrapped native should price at 1, got %s", price)
	}
}

func TestTokenPriceFromDirectPair(t *testing.T) {
	oracle := NewOracle(Config{WrappedNative: wnative}, seededStore(t))
	price := oracle.TokenNativePrice(model.Token{Address: usdc})
	if !price.Equal(dec("0.0004")) {
		t.Fatalf("usdc native price = %s, want 0.0004", price)
	}
}

func TestTokenPricePrefersDeepestPool(t *testing.T) {
	oracle := NewOracle(Config{WrappedNative: wnative}, seededStore(t))
	price := oracle.TokenNativePrice(model.Token{Address: dai})
	if !price.Equal(dec("0.00038461538461538462")) {
		t.Fatalf("dai should price off the deeper pool, got %s", price)
	}
}

func TestTokenWithoutNativePairPricesAtZero(t *testing.T) {
	oracle := NewOracle(Config{WrappedNative: wnative}, seededStore(t))
	price := oracle.TokenNativePrice(model.Token{Address: "0x9999999999999999999999999999999999999999"})
	if !price.IsZero() {
		t.Fatalf("unpaired token should price at zero, got %s", price)
	}
}

func TestNativeUSDFromAnchorPool(t *testing.T) {
	oracle := NewOracle(Config{
		WrappedNative:     wnative,
		USDAnchorPool:     anchor,
		USDStableIsToken0: true,
	}, seededStore(t))
	if got := oracle.NativeUSDPrice(); !got.Equal(dec("2500")) {
		t.Fatalf("native USD price = %s, want 2500", got)
	}
}

func TestNativeUSDWithoutAnchorIsZero(t *testing.T) {
	oracle := NewOracle(Config{WrappedNative: wnative}, seededStore(t))
	if got := oracle.NativeUSDPrice(); !got.IsZero() {
		t.Fatalf("no anchor configured should yield zero, got %s", got)
	}
}
