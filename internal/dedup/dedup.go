package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator checks and records whether an alert has been sent recently.
type Deduplicator struct {
	rdb *redis.Client
}

// New creates a Deduplicator backed by Redis.
func New(redisURL, password string) (*Deduplicator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Deduplicator{rdb: rdb}, nil
}

// Close shuts down the Redis connection.
func (d *Deduplicator) Close() error {
	return d.rdb.Close()
}

// Ping reports whether Redis is reachable.
func (d *Deduplicator) Ping(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

// AlreadySent returns true if key was recorded and has not expired.
// Redis errors count as not sent so alerts keep flowing when Redis is down.
func (d *Deduplicator) AlreadySent(ctx context.Context, key string) bool {
	exists, err := d.rdb.Exists(ctx, key).Result()
	return err == nil && exists > 0
}

// Record marks key as sent for ttl.
func (d *Deduplicator) Record(ctx context.Context, key string, ttl time.Duration) {
	d.rdb.Set(ctx, key, "1", ttl) //nolint:errcheck
}
