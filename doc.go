// Package boardloop coordinates background content updates for a fixed-refresh
// pixel display. Many independently-paced providers (scores, flight positions,
// tickers) compete for a single update cycle while the render loop must stay
// smooth and non-blocking.
//
// Features:
//
//   - Render tick reads committed snapshots only, it never waits on network I/O.
//   - Deferred update scheduler with per-provider cadence, a priority-ordered
//     pending queue and a per-tick wall-clock drain budget.
//   - Animation gate: while a scroll pass is in flight only critical providers
//     are dispatched, the rest stay queued in order.
//   - At most one in-flight fetch per provider, failed fetches keep the last
//     good value and retry at cadence pace instead of busy-spinning.
//   - Generic TTL caches (sharded in-memory and disk-backed) with lazy expiry
//     on read, atomic publish and optional background sweep.
//   - Per-source hourly/daily rate budgets with lazy fixed-origin windows.
//   - Map tile fetching with bounded retries, content-type validation and a
//     consecutive-failure circuit breaker.
//   - Frame-accurate scroll controller with measured speed, bounded dynamic
//     duration and a hard display-time ceiling.
//   - Allows logging, stats collection.
//   - Propagates context to allow better control of backend and application
//     components.
package boardloop
