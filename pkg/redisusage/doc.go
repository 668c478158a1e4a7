// Package redisusage provides a Redis-backed daily usage counter that
// plugs into the entitlement engine as an optional read-efficiency layer.
//
// The package wraps the go-redis client behind a Counter implementing
// the entitlement engine's usage cache contract: atomic per-day
// increments with self-expiring keys. Open dials with retries per the
// supplied configuration, and Healthcheck backs liveness / readiness
// probes.
//
// Counters are keyed by user ID and UTC quota day, so the cache agrees
// with the engine on which day a generation lands in regardless of client
// timezone. Keys expire shortly after their day rolls over.
//
// The cache is never authoritative. The engine folds the cached count into
// its decision by taking the max of cache and store, so a lagging or
// unavailable cache can only tighten the quota gate, never loosen it.
//
// # Usage
//
//	cfg := redisusage.Config{ConnectionURL: "redis://localhost:6379/0"}
//	counter, err := redisusage.Open(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer counter.Close()
//
//	svc := entitlement.NewService(catalog, store,
//	    entitlement.WithUsageCache(counter),
//	)
package redisusage
