package metadata

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"poolscope/internal/model"
)

// Resolver loads token metadata for an address.
type Resolver interface {
	Resolve(ctx context.Context, address string) (model.TokenMeta, error)
}

// StaticResolver serves metadata from a fixed table. The replay stage uses it
// so a decoded event feed can be reprocessed without any RPC endpoint.
type StaticResolver struct {
	mu     sync.RWMutex
	tokens map[string]model.TokenMeta
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{tokens: make(map[string]model.TokenMeta)}
}

// Add registers a token's metadata, keyed case-insensitively by address.
func (r *StaticResolver) Add(meta model.TokenMeta) {
	r.mu.Lock()
	r.tokens[strings.ToLower(meta.Address)] = meta
	r.mu.Unlock()
}

func (r *StaticResolver) Resolve(_ context.Context, address string) (model.TokenMeta, error) {
	r.mu.RLock()
	meta, ok := r.tokens[strings.ToLower(address)]
	r.mu.RUnlock()
	if !ok {
		return model.TokenMeta{}, fmt.Errorf("no metadata recorded for token %s", address)
	}
	return meta, nil
}

// CachedResolver memoizes successful lookups from an inner resolver.
// Failures are not cached so a transient RPC error can be retried.
type CachedResolver struct {
	inner Resolver
	mu    sync.RWMutex
	cache map[string]model.TokenMeta
}

func NewCachedResolver(inner Resolver) *CachedResolver {
	return &CachedResolver{inner: inner, cache: make(map[string]model.TokenMeta)}
}

func (r *CachedResolver) Resolve(ctx context.Context, address string) (model.TokenMeta, error) {
	key := strings.ToLower(address)
	r.mu.RLock()
	meta, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta, err := r.inner.Resolve(ctx, address)
	if err != nil {
		return model.TokenMeta{}, err
	}
	r.mu.Lock()
	r.cache[key] = meta
	r.mu.Unlock()
	return meta, nil
}
