package boardloop

import "sync"

// Gate is the shared animation-busy flag.
//
// Contract: single writer, many readers. The scroll controller owns the writes
// (Set on Start, clear on Done), the scheduler and tests only read. Readers
// always observe a committed value.
type Gate struct {
	mu   sync.RWMutex
	busy bool
}

// Set updates the flag.
func (g *Gate) Set(busy bool) {
	g.mu.Lock()
	g.busy = busy
	g.mu.Unlock()
}

// Busy reports whether an animation pass is in flight.
func (g *Gate) Busy() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.busy
}
