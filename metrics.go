package boardloop

// Metric names for stats.Tracker.
const (
	// MetricHit is a counter of cache hits.
	MetricHit = "cache_hit"
	// MetricMiss is a counter of cache misses.
	MetricMiss = "cache_miss"
	// MetricExpired is a counter of expired entries served as misses.
	MetricExpired = "cache_expired"
	// MetricCorrupt is a counter of unreadable entries evicted on read.
	MetricCorrupt = "cache_corrupt"
	// MetricWrite is a counter of cache writes.
	MetricWrite = "cache_write"
	// MetricDeleteExpired is a counter of entries removed by the sweep job.
	MetricDeleteExpired = "cache_delete_expired"
	// MetricItems is a gauge of cached items.
	MetricItems = "cache_items"

	// MetricDispatched is a counter of provider fetches dispatched.
	MetricDispatched = "provider_dispatched"
	// MetricDeferred is a counter of dispatches deferred by the animation gate.
	MetricDeferred = "provider_deferred"
	// MetricRateDenied is a counter of dispatches denied by the rate budget.
	MetricRateDenied = "provider_rate_denied"
	// MetricFetchOK is a counter of successful provider fetches.
	MetricFetchOK = "provider_fetch_ok"
	// MetricFetchFailed is a counter of failed provider fetches.
	MetricFetchFailed = "provider_fetch_failed"

	// MetricTileFetch is a counter of tile downloads.
	MetricTileFetch = "tile_fetch"
	// MetricTileFailed is a counter of failed tile downloads.
	MetricTileFailed = "tile_failed"
	// MetricTileDisabled is a counter of breaker trips of the tile fetcher.
	MetricTileDisabled = "tile_disabled"

	// MetricScrollDone is a counter of completed scroll passes.
	MetricScrollDone = "scroll_done"
	// MetricScrollTimeout is a counter of scroll passes ended by the safety timeout.
	MetricScrollTimeout = "scroll_timeout"
)
