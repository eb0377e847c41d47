package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolscope/internal/model"
)

// FactoryDecoder decodes the factory PoolCreated event. Token metadata is
// resolved at decode time and embedded in the payload, so the replay stage
// can rebuild state from the event feed alone.
type FactoryDecoder struct {
	factoryABI abi.ABI
	topic0     string
}

// NewFactoryDecoder builds a factory decoder.
func NewFactoryDecoder() (*FactoryDecoder, error) {
	factoryABI, err := FactoryABI()
	if err != nil {
		return nil, err
	}
	return &FactoryDecoder{
		factoryABI: factoryABI,
		topic0:     strings.ToLower(factoryABI.Events["PoolCreated"].ID.Hex()),
	}, nil
}

// Topic0Set lists the topic0 hashes this decoder handles.
func (d *FactoryDecoder) Topic0Set() []string {
	return []string{d.topic0}
}

// CanDecode checks if the topic0 is supported.
func (d *FactoryDecoder) CanDecode(topic0 string) bool {
	return strings.ToLower(topic0) == d.topic0
}

// Decode converts a PoolCreated LogRecord into a TypedEvent.
func (d *FactoryDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	if !d.CanDecode(log.Topics[0]) {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid factory address: %s", log.Address)
	}

	event := d.factoryABI.Events["PoolCreated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}

	var indexed struct {
		Token0 common.Address
		Token1 common.Address
		Fee    *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected pool created values: %d", len(values))
	}

	tickSpacingInt, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}
	tickSpacing, err := int24FromBig(tickSpacingInt)
	if err != nil {
		return nil, fmt.Errorf("tick spacing: %w", err)
	}
	pool, err := asAddress(values[1])
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}

	decoded := model.PoolCreatedEventData{
		Token0:      indexed.Token0.Hex(),
		Token1:      indexed.Token1.Hex(),
		Fee:         uint32(indexed.Fee.Uint64()),
		TickSpacing: tickSpacing,
		Pool:        pool.Hex(),
	}
	decoded.Token0Meta = d.resolveMeta(ctx, indexed.Token0)
	decoded.Token1Meta = d.resolveMeta(ctx, indexed.Token1)

	return buildTypedEvent(log, "PoolCreated", decoded), nil
}

// resolveMeta embeds the token's metadata when the resolver can supply it.
// A miss is left nil for the replay stage to resolve or reject.
func (d *FactoryDecoder) resolveMeta(ctx DecodeContext, token common.Address) *model.TokenMeta {
	if ctx.Metadata == nil {
		return nil
	}
	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}
	meta, err := ctx.Metadata.Resolve(callCtx, token.Hex())
	if err != nil {
		log := ctx.Logger
		if log == nil {
			log = zap.NewNop()
		}
		log.Warn("token metadata resolution failed", zap.String("token", token.Hex()), zap.Error(err))
		return nil
	}
	return &meta
}
