package boardloop

import "context"

var _ ReadWriter = NoOp{}

// NoOp is a ReadWriter stub, misses on every read and discards writes.
// Useful to run the tile fetcher cacheless in tests.
type NoOp struct{}

// Read is always a miss.
func (NoOp) Read(_ context.Context, _ string) (interface{}, error) {
	return nil, ErrCacheItemNotFound
}

// Write discards the value.
func (NoOp) Write(_ context.Context, _ string, _ interface{}) error {
	return nil
}
