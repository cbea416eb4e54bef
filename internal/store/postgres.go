package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/web3-frozen/lp-range-monitor/internal/monitor"
)

// ErrNotFound is returned when no snapshot has been stored for a pool.
var ErrNotFound = errors.New("snapshot not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// SaveLatest overwrites the stored snapshot for the reading's pool.
func (s *Store) SaveLatest(ctx context.Context, r monitor.Reading) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO latest_snapshot (pool_id, price, volume_usd, tvl_usd, in_range, fetched_at, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pool_id) DO UPDATE
			SET price = $2, volume_usd = $3, tvl_usd = $4, in_range = $5, fetched_at = $6, observed_at = $7`,
		r.Snapshot.PoolID, r.Snapshot.Price, r.Snapshot.VolumeUSD, r.Snapshot.TVLUSD,
		r.InRange, r.Snapshot.FetchedAt, r.ObservedAt)
	if err != nil {
		return fmt.Errorf("upsert latest snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the stored snapshot for poolID.
func (s *Store) GetLatest(ctx context.Context, poolID string) (*monitor.Reading, error) {
	var r monitor.Reading
	err := s.pool.QueryRow(ctx, `
		SELECT pool_id, price, volume_usd, tvl_usd, in_range, fetched_at, observed_at
		FROM latest_snapshot WHERE pool_id = $1`, poolID).
		Scan(&r.Snapshot.PoolID, &r.Snapshot.Price, &r.Snapshot.VolumeUSD, &r.Snapshot.TVLUSD,
			&r.InRange, &r.Snapshot.FetchedAt, &r.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return &r, nil
}
