package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"poolscope/internal/model"
)

// Store provides Postgres persistence for reconstructed entity state.
// Decimal columns travel as strings so the database keeps the full scale.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates pool rows.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, token0, token1, fee_tier, tick_spacing, tick,
				sqrt_price, liquidity, reserve0, reserve1, tvl_native,
				token0_price, token1_price, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				tick = EXCLUDED.tick,
				sqrt_price = EXCLUDED.sqrt_price,
				liquidity = EXCLUDED.liquidity,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				tvl_native = EXCLUDED.tvl_native,
				token0_price = EXCLUDED.token0_price,
				token1_price = EXCLUDED.token1_price,
				updated_at = now()
		`,
			pool.Address,
			pool.Token0,
			pool.Token1,
			int64(pool.FeeTier),
			pool.TickSpacing,
			pool.Tick,
			pool.SqrtPrice.String(),
			pool.Liquidity.String(),
			pool.Reserve0.String(),
			pool.Reserve1.String(),
			pool.TVLNative.String(),
			pool.Token0Price.String(),
			pool.Token1Price.String(),
		)
	}
	return s.sendBatch(ctx, batch, len(pools))
}

// UpsertTokens inserts or updates token rows.
func (s *Store) UpsertTokens(ctx context.Context, tokens []model.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, token := range tokens {
		batch.Queue(`
			INSERT INTO tokens (
				token_address, symbol, name, decimals, derived_native, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,now(),now())
			ON CONFLICT (token_address)
			DO UPDATE SET
				symbol = EXCLUDED.symbol,
				name = EXCLUDED.name,
				decimals = EXCLUDED.decimals,
				derived_native = EXCLUDED.derived_native,
				updated_at = now()
		`,
			token.Address,
			token.Symbol,
			token.Name,
			int16(token.Decimals),
			token.DerivedNative.String(),
		)
	}
	return s.sendBatch(ctx, batch, len(tokens))
}

// UpsertTicks inserts or updates tick rows keyed by pool and index.
func (s *Store) UpsertTicks(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, tick := range ticks {
		batch.Queue(`
			INSERT INTO ticks (
				pool_address, tick_index, liquidity_gross, liquidity_net,
				price0, price1, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,now(),now())
			ON CONFLICT (pool_address, tick_index)
			DO UPDATE SET
				liquidity_gross = EXCLUDED.liquidity_gross,
				liquidity_net = EXCLUDED.liquidity_net,
				updated_at = now()
		`,
			tick.PoolAddress,
			tick.Index,
			tick.LiquidityGross.String(),
			tick.LiquidityNet.String(),
			tick.Price0.String(),
			tick.Price1.String(),
		)
	}
	return s.sendBatch(ctx, batch, len(ticks))
}

// UpsertBundle writes the singleton bundle row.
func (s *Store) UpsertBundle(ctx context.Context, bundle model.Bundle) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bundle (id, native_usd, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET native_usd = EXCLUDED.native_usd, updated_at = now()
	`, bundle.NativeUSD.String())
	return err
}

// LoadPools reads all pool rows.
func (s *Store) LoadPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_address, token0, token1, fee_tier, tick_spacing, tick,
			sqrt_price, liquidity, reserve0, reserve1, tvl_native,
			token0_price, token1_price
		FROM pools
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		var (
			pool    model.Pool
			feeTier int64
			raw     [7]string
		)
		if err := rows.Scan(
			&pool.Address, &pool.Token0, &pool.Token1, &feeTier, &pool.TickSpacing, &pool.Tick,
			&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6],
		); err != nil {
			return nil, err
		}
		pool.FeeTier = uint32(feeTier)
		fields := []*decimal.Decimal{
			&pool.SqrtPrice, &pool.Liquidity, &pool.Reserve0, &pool.Reserve1,
			&pool.TVLNative, &pool.Token0Price, &pool.Token1Price,
		}
		for i, field := range fields {
			value, err := decimal.NewFromString(raw[i])
			if err != nil {
				return nil, fmt.Errorf("pool %s column %d: %w", pool.Address, i, err)
			}
			*field = value
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

// LoadTokens reads all token rows.
func (s *Store) LoadTokens(ctx context.Context) ([]model.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_address, symbol, name, decimals, derived_native FROM tokens
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		var (
			token    model.Token
			decimals int16
			derived  string
		)
		if err := rows.Scan(&token.Address, &token.Symbol, &token.Name, &decimals, &derived); err != nil {
			return nil, err
		}
		token.Decimals = uint8(decimals)
		token.DerivedNative, err = decimal.NewFromString(derived)
		if err != nil {
			return nil, fmt.Errorf("token %s derived_native: %w", token.Address, err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// LoadTicks reads all tick rows.
func (s *Store) LoadTicks(ctx context.Context) ([]model.Tick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_address, tick_index, liquidity_gross, liquidity_net, price0, price1
		FROM ticks
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var (
			tick model.Tick
			raw  [4]string
		)
		if err := rows.Scan(&tick.PoolAddress, &tick.Index, &raw[0], &raw[1], &raw[2], &raw[3]); err != nil {
			return nil, err
		}
		fields := []*decimal.Decimal{&tick.LiquidityGross, &tick.LiquidityNet, &tick.Price0, &tick.Price1}
		for i, field := range fields {
			value, err := decimal.NewFromString(raw[i])
			if err != nil {
				return nil, fmt.Errorf("tick %s/%d column %d: %w", tick.PoolAddress, tick.Index, i, err)
			}
			*field = value
		}
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}

// LoadBundle reads the singleton bundle row.
func (s *Store) LoadBundle(ctx context.Context) (model.Bundle, bool, error) {
	var nativeUSD string
	row := s.pool.QueryRow(ctx, `SELECT native_usd FROM bundle WHERE id = 1`)
	if err := row.Scan(&nativeUSD); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bundle{}, false, nil
		}
		return model.Bundle{}, false, err
	}
	value, err := decimal.NewFromString(nativeUSD)
	if err != nil {
		return model.Bundle{}, false, fmt.Errorf("bundle native_usd: %w", err)
	}
	return model.Bundle{NativeUSD: value}, true, nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ts, true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, ts)
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
