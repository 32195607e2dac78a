// Package cache provides an optional Redis-backed cache for problem pages.
//
// Re-running a crawl over a range that was already harvested repeats every
// page request. With a cache configured the transport serves those pages from
// Redis instead, so a resumed run only touches the network for images that are
// missing on disk and for pages that have expired.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	entry, err := manager.Get(ctx, "https://oebp.org/BP12")
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from origin, then:
//		_ = manager.Set(ctx, "https://oebp.org/BP12", cache.NewEntry(200, header, body, manager.TTL()))
//	}
//
// Only 200 responses are cached and a Cache-Control: no-store header is
// honoured. Cache failures never fail a request: callers log and fall through
// to the origin.
//
// # Metrics
//
//   - harvest_page_cache_hits_total
//   - harvest_page_cache_misses_total
//   - harvest_page_cache_errors_total{operation}
package cache
