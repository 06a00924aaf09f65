package boardloop

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/puzpuzpuz/xsync"
)

// SchedulerConfig controls a deferred update scheduler.
type SchedulerConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Budget gates dispatches per remote source, nil admits everything.
	Budget *Budget

	// Gate is the shared animation-busy flag, created if nil.
	Gate *Gate

	// TickBudget is the wall-clock slice one Tick may spend draining the
	// pending queue, default 3ms. A burst of simultaneously-due providers
	// must not stall the render loop.
	TickBudget time.Duration

	// FetchTimeout bounds one provider fetch, default 10s.
	FetchTimeout time.Duration

	// Now is a time source for fetch completion stamps and the drain deadline,
	// default time.Now.
	Now func() time.Time
}

// providerState is owned by the scheduler for the provider's lifetime.
type providerState struct {
	spec     ProviderSpec
	provider Provider

	// Scheduling fields, guarded by Scheduler.mu.
	queued   bool
	inFlight bool
	gone     bool
	dueSince time.Time

	// Result fields, guarded by mu. The render loop does not read these, it
	// reads published snapshots.
	mu           sync.Mutex
	lastUpdateAt time.Time
	lastResult   interface{}
	lastErr      error
}

// Scheduler decides, on every render tick, which due providers may run now and
// which stay queued.
//
// Dispatched fetches run on their own goroutines, gated by the rate budget,
// with at most one in flight per provider. Results are committed as whole
// snapshots, the render loop reads them lock-free and never blocks.
type Scheduler struct {
	config SchedulerConfig
	log    ctxd.Logger
	stat   stats.Tracker
	gate   *Gate
	budget *Budget
	now    func() time.Time

	mu        sync.Mutex
	providers map[string]*providerState
	queue     []*providerState

	snapshots *xsync.Map
}

// NewScheduler creates a deferred update scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.TickBudget == 0 {
		config.TickBudget = 3 * time.Millisecond
	}

	if config.FetchTimeout == 0 {
		config.FetchTimeout = 10 * time.Second
	}

	s := &Scheduler{
		config:    config,
		log:       config.Logger,
		stat:      config.Stats,
		gate:      config.Gate,
		budget:    config.Budget,
		now:       config.Now,
		providers: make(map[string]*providerState),
		snapshots: xsync.NewMap(),
	}

	if s.log == nil {
		s.log = ctxd.NoOpLogger{}
	}

	if s.stat == nil {
		s.stat = stats.NoOp{}
	}

	if s.gate == nil {
		s.gate = &Gate{}
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Gate returns the shared animation-busy flag of this scheduler.
func (s *Scheduler) Gate() *Gate {
	return s.gate
}

// Register adds a provider.
func (s *Scheduler) Register(spec ProviderSpec, p Provider) error {
	if spec.ID == "" {
		return errors.New("provider id is required")
	}

	if p == nil {
		return errors.New("provider is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[spec.ID]; ok {
		return errors.New("provider already registered: " + spec.ID)
	}

	s.providers[spec.ID] = &providerState{spec: spec, provider: p}

	return nil
}

// Unregister removes a provider. A fetch still in flight runs to completion
// and its result is discarded.
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()

	p, ok := s.providers[id]
	if ok {
		p.gone = true
		delete(s.providers, id)

		if p.queued {
			for i, q := range s.queue {
				if q == p {
					s.queue = append(s.queue[:i], s.queue[i+1:]...)

					break
				}
			}
		}
	}

	s.mu.Unlock()

	s.snapshots.Delete(id)
}

// Snapshot returns the committed state of a provider.
//
// This is the render-path read: lock-free and non-blocking, it observes either
// the previous snapshot or the next one, never a partial update.
func (s *Scheduler) Snapshot(id string) (Snapshot, bool) {
	v, ok := s.snapshots.Load(id)
	if !ok {
		return Snapshot{}, false
	}

	return v.(Snapshot), true
}

// Pending returns the number of queued providers, for introspection.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Tick runs one scheduling round, called by the render loop every frame.
//
// Due providers enter the pending queue ordered by (priority, dueSince). While
// the animation gate is busy only critical providers are popped, otherwise the
// queue is drained up to TickBudget of wall-clock time. Tick itself never
// blocks on provider I/O.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.providers {
		if p.queued || p.inFlight {
			continue
		}

		if s.due(p, now) {
			if p.dueSince.IsZero() {
				p.dueSince = now
			}

			p.queued = true
			s.queue = append(s.queue, p)
		}
	}

	sort.SliceStable(s.queue, func(i, j int) bool {
		if s.queue[i].spec.Priority != s.queue[j].spec.Priority {
			return s.queue[i].spec.Priority < s.queue[j].spec.Priority
		}

		return s.queue[i].dueSince.Before(s.queue[j].dueSince)
	})

	busy := s.gate.Busy()
	deadline := s.now().Add(s.config.TickBudget)
	kept := s.queue[:0]

	for _, p := range s.queue {
		if busy && p.spec.Priority != PriorityCritical {
			s.stat.Add(ctx, MetricDeferred, 1, "provider", p.spec.ID)
			kept = append(kept, p)

			continue
		}

		if s.now().After(deadline) {
			// Budget spent, the rest keeps its order for the next tick.
			kept = append(kept, p)

			continue
		}

		s.dispatch(ctx, p)
	}

	s.queue = kept
}

// due reports whether the provider's cadence threshold has elapsed.
func (s *Scheduler) due(p *providerState, now time.Time) bool {
	p.mu.Lock()
	last := p.lastUpdateAt
	p.mu.Unlock()

	if last.IsZero() {
		return true
	}

	return now.Sub(last) >= p.spec.Cadence.interval(p.spec.Interval)
}

// dispatch pops a provider off the queue and starts its fetch, called under mu.
func (s *Scheduler) dispatch(ctx context.Context, p *providerState) {
	p.queued = false

	if s.budget != nil && p.spec.Source != "" {
		if !s.budget.Admit(ctx, p.spec.Source) {
			// Due-but-skipped: lastUpdateAt is untouched so the provider
			// re-enters the queue on a later tick at its cadence, it does not
			// hold a dispatch slot while denied. The snapshot keeps serving the
			// last good payload with the denial reason attached.
			s.log.Debug(ctx, "dispatch denied by rate budget",
				"provider", p.spec.ID,
				"source", p.spec.Source,
				"error", ErrRateLimited)

			p.mu.Lock()
			p.lastErr = ErrRateLimited
			snap := Snapshot{Payload: p.lastResult, UpdatedAt: p.lastUpdateAt, Err: p.lastErr}
			p.mu.Unlock()

			s.snapshots.Store(p.spec.ID, snap)

			return
		}

		s.budget.Record(ctx, p.spec.Source)
	}

	p.inFlight = true

	s.stat.Add(ctx, MetricDispatched, 1, "provider", p.spec.ID)

	go s.fetch(detachedContext{ctx}, p)
}

func (s *Scheduler) fetch(ctx context.Context, p *providerState) {
	fctx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	val, err := p.provider.Fetch(fctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = ErrFetchTimeout
	}

	s.complete(ctx, p, val, err)
}

// complete commits a fetch result and publishes a fresh snapshot.
func (s *Scheduler) complete(ctx context.Context, p *providerState, val interface{}, err error) {
	now := s.now()

	s.mu.Lock()
	p.inFlight = false
	gone := p.gone

	if err == nil {
		p.dueSince = time.Time{}
	}
	s.mu.Unlock()

	if gone {
		// Unregistered while in flight, result is ignored.
		return
	}

	p.mu.Lock()

	if err != nil {
		// lastUpdateAt stays, the provider remains due and retries at cadence
		// pace. The last good value keeps serving (stale-while-revalidate).
		p.lastErr = err
	} else {
		p.lastErr = nil
		p.lastResult = val
		p.lastUpdateAt = now
	}

	snap := Snapshot{Payload: p.lastResult, UpdatedAt: p.lastUpdateAt, Err: p.lastErr}

	p.mu.Unlock()

	s.snapshots.Store(p.spec.ID, snap)

	if err != nil {
		s.log.Warn(ctx, "provider fetch failed",
			"provider", p.spec.ID,
			"error", err)
		s.stat.Add(ctx, MetricFetchFailed, 1, "provider", p.spec.ID)

		return
	}

	s.stat.Add(ctx, MetricFetchOK, 1, "provider", p.spec.ID)
}
