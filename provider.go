package boardloop

import (
	"context"
	"time"
)

// Provider fetches content for one display module.
//
// Implementations are supplied by the external plugin loader. Fetch is called
// from a dispatched goroutine with a deadline, it must honor ctx and may block
// on network I/O.
type Provider interface {
	Fetch(ctx context.Context) (interface{}, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (interface{}, error)

// Fetch implements Provider.
func (f ProviderFunc) Fetch(ctx context.Context) (interface{}, error) {
	return f(ctx)
}

// Cadence determines how often a provider's data is considered stale.
type Cadence int

const (
	// CadenceFixed refreshes at the literal interval of ProviderSpec.Interval.
	CadenceFixed Cadence = iota

	// CadenceDaily is for content that changes about once a day,
	// re-checked hourly.
	CadenceDaily

	// CadenceWeekly is for content that changes about once a week,
	// re-checked daily.
	CadenceWeekly

	// CadenceLive is for in-progress events, re-checked every 30 seconds.
	CadenceLive
)

// String implements fmt.Stringer.
func (c Cadence) String() string {
	switch c {
	case CadenceDaily:
		return "daily"
	case CadenceWeekly:
		return "weekly"
	case CadenceLive:
		return "live-only"
	default:
		return "fixed-interval"
	}
}

// interval returns the staleness threshold, fixed is the configured interval
// of a fixed-interval provider.
func (c Cadence) interval(fixed time.Duration) time.Duration {
	switch c {
	case CadenceDaily:
		return time.Hour
	case CadenceWeekly:
		return 24 * time.Hour
	case CadenceLive:
		return 30 * time.Second
	default:
		return fixed
	}
}

// PriorityCritical is the reserved top priority tier.
//
// Critical providers are dispatched even while an animation pass is in flight,
// reserved for content whose staleness would be visibly wrong, such as live
// score ticking.
const PriorityCritical = 0

// ProviderSpec describes a registered provider.
type ProviderSpec struct {
	// ID uniquely names the provider.
	ID string

	// Source names the remote service the provider calls, used for rate
	// budgeting. Providers sharing a service share its budget.
	Source string

	// Cadence is the refresh policy.
	Cadence Cadence

	// Interval is the refresh interval of a CadenceFixed provider.
	Interval time.Duration

	// Priority orders dispatch, lower is more urgent. PriorityCritical
	// bypasses the animation gate.
	Priority int
}

// Snapshot is the committed state of a provider as seen by the render loop.
//
// A snapshot is published as a whole, readers never observe a partial update.
type Snapshot struct {
	// Payload is the last good fetch result, it survives later failures.
	Payload interface{}

	// UpdatedAt is the time of the last successful fetch.
	UpdatedAt time.Time

	// Err is the error of the last fetch, nil after a success.
	Err error
}
