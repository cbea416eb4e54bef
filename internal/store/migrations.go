package store

import "context"

// latest_snapshot holds at most one row per pool; it is overwritten every cycle.
const migrationSQL = `
CREATE TABLE IF NOT EXISTS latest_snapshot (
    pool_id TEXT PRIMARY KEY,
    price DOUBLE PRECISION NOT NULL,
    volume_usd DOUBLE PRECISION NOT NULL,
    tvl_usd DOUBLE PRECISION NOT NULL,
    in_range BOOLEAN NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
