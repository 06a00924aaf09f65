package boardloop

// SentinelError is an error.
type SentinelError string

const (
	// ErrExpiredCacheItem indicates expired cache entry.
	ErrExpiredCacheItem = SentinelError("expired cache item")

	// ErrCorruptCacheItem indicates unreadable cache entry, it is evicted and
	// treated as a miss.
	ErrCorruptCacheItem = SentinelError("corrupt cache item")

	// ErrRateLimited indicates admission denied by the rate budget, no remote
	// call was issued.
	ErrRateLimited = SentinelError("rate budget exhausted")

	// ErrFetchTimeout indicates a provider fetch exceeded its timeout.
	ErrFetchTimeout = SentinelError("fetch timed out")

	// ErrFetchHTTP indicates a non-2xx response.
	ErrFetchHTTP = SentinelError("unexpected http status")

	// ErrDecode indicates a response body that is not a valid payload, it is
	// discarded and never cached.
	ErrDecode = SentinelError("invalid payload")

	// ErrTilesDisabled indicates the tile fetcher tripped its failure breaker
	// and short-circuits without network I/O.
	ErrTilesDisabled = SentinelError("tile fetching disabled")

	// ErrNothingToInvalidate indicates no callbacks were added to Invalidator.
	ErrNothingToInvalidate = SentinelError("nothing to invalidate")

	// ErrAlreadyInvalidated indicates recent invalidation.
	ErrAlreadyInvalidated = SentinelError("already invalidated")

	// errMissingCacheItem is wrapped with a status class in cache.go.
	errMissingCacheItem = SentinelError("missing cache item")
)

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}
