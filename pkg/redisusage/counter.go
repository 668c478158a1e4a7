package redisusage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Counter keeps per-user daily generation counters in Redis. Each counter
// lives under a key scoped to the UTC quota day and expires shortly after
// the day rolls over, so stale keys clean themselves up.
//
// Counter is a read-efficiency layer, not the source of truth: the
// subscription store remains authoritative, and the engine only ever uses
// the cached count to tighten the quota gate.
type Counter struct {
	client *redis.Client
	prefix string
}

// NewCounter wraps an existing Redis client.
func NewCounter(client *redis.Client, prefix string) *Counter {
	if client == nil {
		panic("redisusage: redis client is required")
	}
	if prefix == "" {
		prefix = "usage"
	}
	return &Counter{client: client, prefix: prefix}
}

// Open dials Redis per cfg and returns a ready Counter using the
// configured key prefix. The dial is retried until the server answers a
// ping, the attempts run out, or the connect timeout elapses.
func Open(ctx context.Context, cfg Config) (*Counter, error) {
	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var lastErr error
	for attempt := range cfg.RetryAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(ErrRedisNotReady, ctx.Err())
			case <-time.After(cfg.RetryInterval):
			}
		}

		client := redis.NewClient(opt)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return NewCounter(client, cfg.KeyPrefix), nil
		}
		_ = client.Close()
	}
	return nil, errors.Join(ErrRedisNotReady, lastErr)
}

// Healthcheck verifies the underlying connection is alive, suitable for
// liveness and readiness probes.
func (c *Counter) Healthcheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Counter) Close() error {
	return c.client.Close()
}

// key scopes the counter to the user and the UTC quota day, e.g.
// "usage:3f2a...:2026-08-31".
func (c *Counter) key(userID uuid.UUID, t time.Time) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, userID, t.UTC().Format("2006-01-02"))
}

// Increment bumps the counter for the user's quota day containing t and
// returns the new value. The key expires an hour past the next UTC
// midnight, comfortably outliving the day it counts.
func (c *Counter) Increment(ctx context.Context, userID uuid.UUID, t time.Time) (int64, error) {
	t = t.UTC()
	key := c.key(userID, t)
	expireAt := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, 1).
		Add(time.Hour)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Today returns the counter for the user's quota day containing t.
// A missing key counts as zero.
func (c *Counter) Today(ctx context.Context, userID uuid.UUID, t time.Time) (int64, error) {
	n, err := c.client.Get(ctx, c.key(userID, t)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
