package boardloop

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/cespare/xxhash/v2"
)

// errByteValueRequired indicates a disk cache write with a non-[]byte value.
const errByteValueRequired = SentinelError("disk cache value must be []byte")

// diskEntry is the on-disk representation of a cache entry.
type diskEntry struct {
	Key string
	Val []byte
	Exp time.Time
}

// DiskConfig controls disk-backed cache instance.
type DiskConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Name is cache instance name, used in stats and logging.
	Name string

	// Dir is a directory to keep entries in, created if missing.
	Dir string

	// TimeToLive is delay before entry expiration, default 24h.
	TimeToLive time.Duration

	// DeleteExpiredJobInterval is delay between two consecutive sweeps of the
	// directory, default 1h. Use -1 to disable. Sweeping only bounds disk
	// growth, reads re-check TTL regardless.
	DeleteExpiredJobInterval time.Duration
}

var _ ReadWriter = &Disk{}

// Disk is a disk-backed cache for opaque []byte payloads.
//
// Entries are gob-encoded files named by a hash of the key, so any key maps to
// its file without enumeration. A write goes to a temporary file in the same
// directory and is renamed into place, readers observe either the previous
// entry or the new one. Concurrent writes of the same key are serialized by a
// per-key lock, unrelated keys proceed in parallel.
type Disk struct {
	config DiskConfig
	log    ctxd.Logger
	stat   stats.Tracker
	closed chan struct{}

	lock     sync.Mutex // Securing keyLocks.
	keyLocks map[string]chan struct{}
}

// NewDisk creates an instance of disk-backed cache.
func NewDisk(config DiskConfig) (*Disk, error) {
	if config.TimeToLive == 0 {
		config.TimeToLive = 24 * time.Hour
	}

	if config.DeleteExpiredJobInterval == 0 {
		config.DeleteExpiredJobInterval = time.Hour
	}

	if err := os.MkdirAll(config.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Disk{
		config:   config,
		log:      config.Logger,
		stat:     config.Stats,
		closed:   make(chan struct{}),
		keyLocks: make(map[string]chan struct{}),
	}

	if c.log == nil {
		c.log = ctxd.NoOpLogger{}
	}

	if c.stat == nil {
		c.stat = stats.NoOp{}
	}

	if config.DeleteExpiredJobInterval > 0 {
		go c.cleaner()
	}

	return c, nil
}

// path maps a key to its file without scanning the directory.
func (c *Disk) path(k string) string {
	return filepath.Join(c.config.Dir, fmt.Sprintf("%016x.cache", xxhash.Sum64String(k)))
}

// lockKey acquires the write lock of a key and returns the release function.
func (c *Disk) lockKey(k string) func() {
	for {
		c.lock.Lock()

		keyLock, alreadyLocked := c.keyLocks[k]
		if !alreadyLocked {
			keyLock = make(chan struct{})
			c.keyLocks[k] = keyLock
			c.lock.Unlock()

			return func() {
				c.lock.Lock()
				delete(c.keyLocks, k)
				close(keyLock)
				c.lock.Unlock()
			}
		}

		c.lock.Unlock()

		// Waiting for the current owner, then competing again.
		<-keyLock
	}
}

// Read gets value.
//
// Expired entries are evicted as a side effect of the read and returned with
// ErrExpiredCacheItem. Unreadable entries are evicted and reported with
// ErrCorruptCacheItem, callers treat any error as a miss.
func (c *Disk) Read(ctx context.Context, k string) (interface{}, error) {
	if SkipRead(ctx) {
		return nil, ErrCacheItemNotFound
	}

	fn := c.path(k)

	f, err := os.Open(fn)
	if err != nil {
		c.log.Debug(ctx, "cache miss", "name", c.config.Name, "key", k)
		c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)

		return nil, ErrCacheItemNotFound
	}

	var e diskEntry

	err = gob.NewDecoder(f).Decode(&e)

	if clErr := f.Close(); clErr != nil && err == nil {
		err = clErr
	}

	// Hash collisions land here too, a foreign key means the entry is not ours.
	if err == nil && e.Key != k {
		err = fmt.Errorf("%w: key mismatch", ErrCorruptCacheItem)
	}

	if err != nil {
		c.evict(ctx, k, fn)
		c.log.Warn(ctx, "corrupt cache entry evicted",
			"name", c.config.Name,
			"key", k,
			"error", err)
		c.stat.Add(ctx, MetricCorrupt, 1, "name", c.config.Name)

		return nil, ErrCorruptCacheItem
	}

	if e.Exp.Before(time.Now()) {
		c.evict(ctx, k, fn)
		c.log.Debug(ctx, "cache key expired", "name", c.config.Name, "key", k)
		c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)

		return e.Val, ErrExpiredCacheItem
	}

	c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)

	return e.Val, nil
}

// Write sets value, only []byte payloads are accepted.
func (c *Disk) Write(ctx context.Context, k string, v interface{}) error {
	b, ok := v.([]byte)
	if !ok {
		return errByteValueRequired
	}

	ttl := TTL(ctx)
	if ttl == SkipWriteTTL {
		return nil
	}

	if ttl == DefaultTTL {
		ttl = c.config.TimeToLive
	}

	unlock := c.lockKey(k)
	defer unlock()

	tmp, err := os.CreateTemp(c.config.Dir, "write-*.tmp")
	if err != nil {
		return ctxd.WrapError(ctx, err, "create cache temp file")
	}

	err = gob.NewEncoder(tmp).Encode(diskEntry{Key: k, Val: b, Exp: time.Now().Add(ttl)})

	if clErr := tmp.Close(); clErr != nil && err == nil {
		err = clErr
	}

	if err == nil {
		err = os.Rename(tmp.Name(), c.path(k))
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return ctxd.WrapError(ctx, err, "write cache entry")
	}

	c.log.Debug(ctx, "wrote to cache", "name", c.config.Name, "key", k, "ttl", ttl)
	c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)

	return nil
}

func (c *Disk) evict(ctx context.Context, k, fn string) {
	unlock := c.lockKey(k)
	defer unlock()

	if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
		c.log.Error(ctx, "failed to evict cache entry",
			"name", c.config.Name,
			"key", k,
			"error", err)
	}
}

// Len returns number of entries on disk.
func (c *Disk) Len() int {
	names, err := os.ReadDir(c.config.Dir)
	if err != nil {
		return 0
	}

	cnt := 0

	for _, de := range names {
		if filepath.Ext(de.Name()) == ".cache" {
			cnt++
		}
	}

	return cnt
}

// Close stops the background sweep job.
func (c *Disk) Close() {
	close(c.closed)
}

func (c *Disk) cleaner() {
	for {
		select {
		case <-time.After(c.config.DeleteExpiredJobInterval):
			c.clearExpired()
		case <-c.closed:
			return
		}
	}
}

func (c *Disk) clearExpired() {
	ctx := context.Background()

	names, err := os.ReadDir(c.config.Dir)
	if err != nil {
		c.log.Error(ctx, "failed to sweep cache dir", "name", c.config.Name, "error", err)

		return
	}

	now := time.Now()
	removed := 0

	for _, de := range names {
		if filepath.Ext(de.Name()) != ".cache" {
			continue
		}

		fn := filepath.Join(c.config.Dir, de.Name())

		var e diskEntry

		f, err := os.Open(fn)
		if err != nil {
			continue
		}

		err = gob.NewDecoder(f).Decode(&e)
		_ = f.Close()

		if err != nil || e.Exp.Before(now) {
			c.evict(ctx, e.Key, fn)
			removed++
		}
	}

	c.log.Debug(ctx, "cleared expired cache items", "name", c.config.Name, "removed", removed)
	c.stat.Add(ctx, MetricDeleteExpired, float64(removed), "name", c.config.Name)
}
