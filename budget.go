package boardloop

import (
	"context"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// BudgetConfig controls a rate budget tracker.
type BudgetConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// HourlyLimit is the default per-source call limit within one hour,
	// 0 or negative means unlimited.
	HourlyLimit int

	// DailyLimit is the default per-source call limit within one day,
	// 0 or negative means unlimited.
	DailyLimit int

	// Now is a time source, default time.Now.
	Now func() time.Time
}

// window is a fixed-origin counting window.
//
// The window starts at a wall-clock boundary (top of the hour, UTC midnight)
// and rolls over lazily on first use after the boundary.
type window struct {
	start time.Time
	count int
	limit int
	size  time.Duration
}

func (w *window) roll(now time.Time) {
	start := now.Truncate(w.size)
	if start.After(w.start) {
		w.start = start
		w.count = 0
	}
}

func (w *window) belowLimit() bool {
	return w.limit <= 0 || w.count < w.limit
}

type sourceBudget struct {
	mu     sync.Mutex
	hourly window
	daily  window
}

// Budget is admission control for outbound calls, counting per remote source.
//
// Budgets are never shared between sources, exhaustion of one never blocks
// another. A source seen for the first time (including after restart) starts
// optimistic at count 0, calls made before the tracker observed them carry no
// retroactive penalty.
type Budget struct {
	config BudgetConfig
	log    ctxd.Logger
	stat   stats.Tracker
	now    func() time.Time

	mu      sync.Mutex // Securing sources map, not the counters.
	sources map[string]*sourceBudget
}

// NewBudget creates a rate budget tracker.
func NewBudget(config BudgetConfig) *Budget {
	b := &Budget{
		config:  config,
		log:     config.Logger,
		stat:    config.Stats,
		now:     config.Now,
		sources: make(map[string]*sourceBudget),
	}

	if b.log == nil {
		b.log = ctxd.NoOpLogger{}
	}

	if b.stat == nil {
		b.stat = stats.NoOp{}
	}

	if b.now == nil {
		b.now = time.Now
	}

	return b
}

func (b *Budget) source(source string) *sourceBudget {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sources[source]
	if !ok {
		s = &sourceBudget{
			hourly: window{size: time.Hour, limit: b.config.HourlyLimit},
			daily:  window{size: 24 * time.Hour, limit: b.config.DailyLimit},
		}
		b.sources[source] = s
	}

	return s
}

// SetLimits overrides the default limits for one source.
//
// Zero or negative limit means unlimited for that window. Counters of the
// current windows are kept.
func (b *Budget) SetLimits(source string, hourly, daily int) {
	s := b.source(source)

	s.mu.Lock()
	s.hourly.limit = hourly
	s.daily.limit = daily
	s.mu.Unlock()
}

// Admit reports whether a call to source fits both the hourly and the daily
// budget. The check is speculative and free, it does not count.
func (b *Budget) Admit(ctx context.Context, source string) bool {
	now := b.now()
	s := b.source(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hourly.roll(now)
	s.daily.roll(now)

	if s.hourly.belowLimit() && s.daily.belowLimit() {
		return true
	}

	b.log.Debug(ctx, "rate budget exhausted",
		"source", source,
		"hourly", s.hourly.count,
		"daily", s.daily.count)
	b.stat.Add(ctx, MetricRateDenied, 1, "source", source)

	return false
}

// Record counts one issued call against source.
//
// It must be called exactly once per actually-issued remote call. Counting is
// not retroactive, Record after the fact never revokes an admitted call.
func (b *Budget) Record(ctx context.Context, source string) {
	now := b.now()
	s := b.source(source)

	s.mu.Lock()
	s.hourly.roll(now)
	s.daily.roll(now)
	s.hourly.count++
	s.daily.count++
	s.mu.Unlock()
}

// Reset drops all counters, e.g. on config reload.
func (b *Budget) Reset() {
	b.mu.Lock()
	b.sources = make(map[string]*sourceBudget)
	b.mu.Unlock()
}
