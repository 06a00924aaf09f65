package boardloop

import (
	"context"
	"io"
	"time"

	"github.com/swaggest/usecase/status"
)

// ErrCacheItemNotFound indicates missing cache entry.
var ErrCacheItemNotFound = status.Wrap(errMissingCacheItem, status.NotFound)

// DefaultTTL indicates default ttl value (store configuration) for entry expiration time.
const DefaultTTL = time.Duration(0)

// SkipWriteTTL is a ttl value to indicate that cache must not be stored.
const SkipWriteTTL = time.Duration(-1)

// Reader reads from cache.
type Reader interface {
	// Read returns cached value or an error.
	// A nil error means the entry is present and valid, any error is a miss on
	// the caller side. If ErrExpiredCacheItem is returned, the stale value is
	// returned as well and the entry has been evicted.
	Read(ctx context.Context, key string) (interface{}, error)
}

// Writer writes to cache.
type Writer interface {
	// Write stores value in cache with a given key.
	//
	// The new entry is published atomically, concurrent readers observe either
	// the previous value or the new one, never a partial write.
	Write(ctx context.Context, key string, value interface{}) error
}

// ReadWriter reads from and writes to cache.
type ReadWriter interface {
	Reader
	Writer
}

// Entry is a cache entry.
type Entry interface {
	Value() interface{}
}

// Expirable exposes entry expiration time.
type Expirable interface {
	ExpireAt() time.Time
}

// Walker calls function for every entry in cache and fails on first error returned by that function.
//
// Count of processed entries is returned.
type Walker interface {
	Walk(func(key string, entry Entry) error) (int, error)
}

// Dumper dumps cache entries in binary format.
type Dumper interface {
	Dump(w io.Writer) (int, error)
}

// Restorer restores cache entries from binary dump.
type Restorer interface {
	Restore(r io.Reader) (int, error)
}
