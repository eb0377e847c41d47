package state

import (
	"sort"
	"strings"
	"sync"

	"poolscope/internal/model"
)

// EntityStore is the persistence contract the engine runs against. Loads
// report absence instead of erroring; a save is visible to every later load
// within the same event (read-your-writes).
type EntityStore interface {
	Pool(address string) (model.Pool, bool)
	SavePool(pool model.Pool)
	Token(address string) (model.Token, bool)
	SaveToken(token model.Token)
	Tick(poolAddress string, index int32) (model.Tick, bool)
	SaveTick(tick model.Tick)
	Bundle() (model.Bundle, bool)
	SaveBundle(bundle model.Bundle)
}

// MemoryStore is the in-process EntityStore. Addresses are case-insensitive.
// Individual operations are goroutine-safe; events for one pool must still be
// applied in order by a single goroutine.
type MemoryStore struct {
	mu     sync.RWMutex
	pools  map[string]model.Pool
	tokens map[string]model.Token
	ticks  map[tickKey]model.Tick
	bundle *model.Bundle
}

type tickKey struct {
	pool  string
	index int32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:  make(map[string]model.Pool),
		tokens: make(map[string]model.Token),
		ticks:  make(map[tickKey]model.Tick),
	}
}

func entityKey(address string) string {
	return strings.ToLower(address)
}

func (s *MemoryStore) Pool(address string) (model.Pool, bool) {
	s.mu.RLock()
	pool, ok := s.pools[entityKey(address)]
	s.mu.RUnlock()
	return pool, ok
}

func (s *MemoryStore) SavePool(pool model.Pool) {
	s.mu.Lock()
	s.pools[entityKey(pool.Address)] = pool
	s.mu.Unlock()
}

func (s *MemoryStore) Token(address string) (model.Token, bool) {
	s.mu.RLock()
	token, ok := s.tokens[entityKey(address)]
	s.mu.RUnlock()
	return token, ok
}

func (s *MemoryStore) SaveToken(token model.Token) {
	s.mu.Lock()
	s.tokens[entityKey(token.Address)] = token
	s.mu.Unlock()
}

func (s *MemoryStore) Tick(poolAddress string, index int32) (model.Tick, bool) {
	s.mu.RLock()
	tick, ok := s.ticks[tickKey{pool: entityKey(poolAddress), index: index}]
	s.mu.RUnlock()
	return tick, ok
}

func (s *MemoryStore) SaveTick(tick model.Tick) {
	s.mu.Lock()
	s.ticks[tickKey{pool: entityKey(tick.PoolAddress), index: tick.Index}] = tick
	s.mu.Unlock()
}

func (s *MemoryStore) Bundle() (model.Bundle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bundle == nil {
		return model.Bundle{}, false
	}
	return *s.bundle, true
}

func (s *MemoryStore) SaveBundle(bundle model.Bundle) {
	s.mu.Lock()
	s.bundle = &bundle
	s.mu.Unlock()
}

// Pools returns all pool records ordered by address, for snapshotting.
func (s *MemoryStore) Pools() []model.Pool {
	s.mu.RLock()
	out := make([]model.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		out = append(out, pool)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return entityKey(out[i].Address) < entityKey(out[j].Address) })
	return out
}

// Tokens returns all token records ordered by address.
func (s *MemoryStore) Tokens() []model.Token {
	s.mu.RLock()
	out := make([]model.Token, 0, len(s.tokens))
	for _, token := range s.tokens {
		out = append(out, token)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return entityKey(out[i].Address) < entityKey(out[j].Address) })
	return out
}

// Ticks returns all tick records ordered by pool then index.
func (s *MemoryStore) Ticks() []model.Tick {
	s.mu.RLock()
	out := make([]model.Tick, 0, len(s.ticks))
	for _, tick := range s.ticks {
		out = append(out, tick)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		pi, pj := entityKey(out[i].PoolAddress), entityKey(out[j].PoolAddress)
		if pi != pj {
			return pi < pj
		}
		return out[i].Index < out[j].Index
	})
	return out
}
