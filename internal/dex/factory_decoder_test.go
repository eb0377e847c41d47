package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolscope/internal/metadata"
	"poolscope/internal/model"
)

func TestFactoryDecoderPoolCreated(t *testing.T) {
	factoryABI, err := FactoryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewFactoryDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	factory := common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	token0 := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	pool := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	resolver := metadata.NewStaticResolver()
	resolver.Add(model.TokenMeta{Address: token0.Hex(), Decimals: 6, Symbol: "USDC"})
	resolver.Add(model.TokenMeta{Address: token1.Hex(), Decimals: 18, Symbol: "WETH"})

	data, err := factoryABI.Events["PoolCreated"].Inputs.NonIndexed().Pack(
		big.NewInt(60),
		pool,
	)
	if err != nil {
		t.Fatalf("pack pool created: %v", err)
	}

	logRecord := buildLogRecord(factory, factoryABI.Events["PoolCreated"].ID, data, []common.Hash{
		topicFromAddress(token0),
		topicFromAddress(token1),
		common.BigToHash(big.NewInt(3000)),
	})

	event, err := decoder.Decode(logRecord, DecodeContext{Metadata: resolver, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("decode pool created: %v", err)
	}

	created, ok := event.Decoded.(model.PoolCreatedEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if created.Pool != pool.Hex() || created.Token0 != token0.Hex() || created.Token1 != token1.Hex() {
		t.Fatalf("addresses mismatch: %+v", created)
	}
	if created.Fee != 3000 || created.TickSpacing != 60 {
		t.Fatalf("fee tier mismatch: %+v", created)
	}
	if created.Token0Meta == nil || created.Token0Meta.Decimals != 6 {
		t.Fatalf("token0 metadata not embedded: %+v", created.Token0Meta)
	}
	if created.Token1Meta == nil || created.Token1Meta.Symbol != "WETH" {
		t.Fatalf("token1 metadata not embedded: %+v", created.Token1Meta)
	}
	if event.EventName != "PoolCreated" {
		t.Fatalf("event name mismatch: %s", event.EventName)
	}
}

func TestFactoryDecoderUnresolvedMetadataLeftNil(t *testing.T) {
	factoryABI, err := FactoryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewFactoryDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	data, err := factoryABI.Events["PoolCreated"].Inputs.NonIndexed().Pack(
		big.NewInt(10),
		common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
	)
	if err != nil {
		t.Fatalf("pack pool created: %v", err)
	}

	logRecord := buildLogRecord(
		common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		factoryABI.Events["PoolCreated"].ID,
		data,
		[]common.Hash{
			topicFromAddress(common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")),
			topicFromAddress(common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")),
			common.BigToHash(big.NewInt(500)),
		},
	)

	// Empty resolver: both tokens miss.
	event, err := decoder.Decode(logRecord, DecodeContext{Metadata: metadata.NewStaticResolver(), Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("decode pool created: %v", err)
	}
	created := event.Decoded.(model.PoolCreatedEventData)
	if created.Token0Meta != nil || created.Token1Meta != nil {
		t.Fatalf("unresolved metadata should stay nil: %+v", created)
	}
}
