package boardloop

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/cespare/xxhash/v2"
)

// entry is a cache entry.
type entry struct {
	Val interface{}
	Exp time.Time
}

func (e entry) Value() interface{} {
	return e.Val
}

func (e entry) ExpireAt() time.Time {
	return e.Exp
}

// MemoryConfig controls in-memory cache instance.
type MemoryConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Name is cache instance name, used in stats and logging.
	Name string

	// TimeToLive is delay before entry expiration, default 5m.
	TimeToLive time.Duration

	// DeleteExpiredJobInterval is delay between two consecutive sweeps, default 1h.
	// Sweeping is an optimization to bound storage growth, reads re-check TTL
	// regardless. Use -1 to disable.
	DeleteExpiredJobInterval time.Duration

	// ItemsCountReportInterval is items count metric report interval, default 1m.
	ItemsCountReportInterval time.Duration

	// ExpirationJitter is a fraction of TTL to randomize, default 0.1.
	// Use -1 to disable.
	// If enabled, entry TTL will be randomly altered in bounds of ±(ExpirationJitter * TTL / 2).
	ExpirationJitter float64
}

const shards = 64

type bucket struct {
	sync.RWMutex
	data map[string]entry
}

var _ ReadWriter = &Memory{}

// Memory is a sharded in-memory cache.
//
// Keys are distributed over buckets by hash, so writers of unrelated keys do
// not contend. Expired entries are treated as absent and evicted on read.
type Memory struct {
	buckets [shards]bucket
	closed  chan struct{}

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewMemory creates an instance of in-memory cache with optional configuration.
func NewMemory(cfg ...MemoryConfig) *Memory {
	config := MemoryConfig{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 5 * time.Minute
	}

	if config.DeleteExpiredJobInterval == 0 {
		config.DeleteExpiredJobInterval = time.Hour
	}

	if config.ItemsCountReportInterval == 0 {
		config.ItemsCountReportInterval = time.Minute
	}

	if config.ExpirationJitter == 0 {
		config.ExpirationJitter = 0.1
	}

	c := &Memory{
		config: config,
		log:    config.Logger,
		stat:   config.Stats,
		closed: make(chan struct{}),
	}

	if c.log == nil {
		c.log = ctxd.NoOpLogger{}
	}

	if c.stat == nil {
		c.stat = stats.NoOp{}
	}

	for i := 0; i < shards; i++ {
		c.buckets[i].data = make(map[string]entry)
	}

	if config.DeleteExpiredJobInterval > 0 {
		go c.cleaner()
	}

	if config.Stats != nil {
		go c.reportItemsCount()
	}

	return c
}

func (c *Memory) bucket(k string) *bucket {
	return &c.buckets[xxhash.Sum64String(k)%shards]
}

// Read gets value.
//
// Expired entries are evicted as a side effect of the read and returned with
// ErrExpiredCacheItem, callers treat any error as a miss.
func (c *Memory) Read(ctx context.Context, k string) (interface{}, error) {
	if SkipRead(ctx) {
		return nil, ErrCacheItemNotFound
	}

	b := c.bucket(k)

	b.RLock()
	cacheEntry, found := b.data[k]
	b.RUnlock()

	if !found {
		c.log.Debug(ctx, "cache miss", "name", c.config.Name, "key", k)
		c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)

		return nil, ErrCacheItemNotFound
	}

	if cacheEntry.Exp.Before(time.Now()) {
		b.Lock()
		// Entry could have been refreshed since the read above.
		if cur, ok := b.data[k]; ok && cur.Exp.Equal(cacheEntry.Exp) {
			delete(b.data, k)
		}
		b.Unlock()

		c.log.Debug(ctx, "cache key expired", "name", c.config.Name, "key", k)
		c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)

		return cacheEntry.Val, ErrExpiredCacheItem
	}

	c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)

	return cacheEntry.Val, nil
}

// Write sets value.
func (c *Memory) Write(ctx context.Context, k string, v interface{}) error {
	ttl := TTL(ctx)
	if ttl == SkipWriteTTL {
		return nil
	}

	if ttl == DefaultTTL {
		ttl = c.config.TimeToLive
	}

	if c.config.ExpirationJitter > 0 {
		ttl += time.Duration(float64(ttl) * c.config.ExpirationJitter * (rand.Float64() - 0.5))
	}

	b := c.bucket(k)

	b.Lock()
	b.data[k] = entry{Val: v, Exp: time.Now().Add(ttl)}
	b.Unlock()

	c.log.Debug(ctx, "wrote to cache", "name", c.config.Name, "key", k, "ttl", ttl)
	c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)

	return nil
}

// ExpireAll marks all entries as expired, next read evicts them.
func (c *Memory) ExpireAll() {
	now := time.Now()

	for i := range c.buckets {
		b := &c.buckets[i]

		b.Lock()
		for k, v := range b.data {
			v.Exp = now
			b.data[k] = v
		}
		b.Unlock()
	}
}

// RemoveAll deletes all entries.
func (c *Memory) RemoveAll() {
	for i := range c.buckets {
		b := &c.buckets[i]

		b.Lock()
		b.data = make(map[string]entry)
		b.Unlock()
	}
}

// Len returns number of elements in cache.
func (c *Memory) Len() int {
	cnt := 0

	for i := range c.buckets {
		b := &c.buckets[i]

		b.RLock()
		cnt += len(b.data)
		b.RUnlock()
	}

	return cnt
}

// Walk walks cached entries.
func (c *Memory) Walk(walkFn func(key string, value Entry) error) (int, error) {
	n := 0

	for i := range c.buckets {
		b := &c.buckets[i]

		b.RLock()
		for k, v := range b.data {
			b.RUnlock()

			err := walkFn(k, v)

			b.RLock()

			if err != nil {
				b.RUnlock()

				return n, err
			}

			n++
		}
		b.RUnlock()
	}

	return n, nil
}

// Close stops background jobs of the cache instance.
func (c *Memory) Close() {
	close(c.closed)
}

func (c *Memory) cleaner() {
	for {
		select {
		case <-time.After(c.config.DeleteExpiredJobInterval):
			c.clearExpired()
		case <-c.closed:
			return
		}
	}
}

func (c *Memory) clearExpired() {
	now := time.Now()
	removed := 0

	for i := range c.buckets {
		b := &c.buckets[i]
		keys := make([]string, 0, 100)

		b.RLock()
		for k, e := range b.data {
			if e.Exp.Before(now) {
				keys = append(keys, k)
			}
		}
		b.RUnlock()

		b.Lock()
		for _, k := range keys {
			if e, ok := b.data[k]; ok && e.Exp.Before(now) {
				delete(b.data, k)
				removed++
			}
		}
		b.Unlock()
	}

	c.log.Debug(context.Background(), "cleared expired cache items",
		"name", c.config.Name,
		"removed", removed,
	)
	c.stat.Add(context.Background(), MetricDeleteExpired, float64(removed), "name", c.config.Name)
}

func (c *Memory) reportItemsCount() {
	for {
		select {
		case <-time.After(c.config.ItemsCountReportInterval):
			c.stat.Set(context.Background(), MetricItems, float64(c.Len()), "name", c.config.Name)
		case <-c.closed:
			return
		}
	}
}
