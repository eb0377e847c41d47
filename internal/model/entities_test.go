package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPoolJSONUninitializedTickOmitted(t *testing.T) {
	pool := Pool{
		Address:     "0x1111111111111111111111111111111111111111",
		Token0:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token1:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		FeeTier:     3000,
		TickSpacing: 60,
	}

	data, err := json.Marshal(pool)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), `"tick"`) {
		t.Fatalf("uninitialized tick should be omitted: %s", data)
	}
}

func TestPoolJSONDecimalFieldsQuoted(t *testing.T) {
	tick := int32(-887272)
	pool := Pool{
		Address:   "0x1111111111111111111111111111111111111111",
		Tick:      &tick,
		Liquidity: decimal.RequireFromString("340282366920938463463374607431768211455"),
		Reserve0:  decimal.RequireFromString("0.000000000000000001"),
	}

	data, err := json.Marshal(pool)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["liquidity"].(string); !ok {
		t.Fatalf("liquidity should encode as string, got %T", decoded["liquidity"])
	}
	if _, ok := decoded["reserve0"].(string); !ok {
		t.Fatalf("reserve0 should encode as string, got %T", decoded["reserve0"])
	}
	if decoded["tick"].(float64) != -887272 {
		t.Fatalf("tick mismatch: %v", decoded["tick"])
	}

	var back Pool
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode pool: %v", err)
	}
	if !back.Liquidity.Equal(pool.Liquidity) {
		t.Fatalf("liquidity round-trip mismatch: %s != %s", back.Liquidity, pool.Liquidity)
	}
}
