package boardloop

import (
	"context"
	"time"
)

// detachedContext exposes parent values, but suppresses parent cancellation.
// Dispatched fetches run to their own timeout even if the ticking context is
// cancelled between frames.
type detachedContext struct {
	ctx context.Context
}

func (dctx detachedContext) Deadline() (deadline time.Time, ok bool) {
	return time.Time{}, false
}

func (dctx detachedContext) Done() <-chan struct{} {
	return nil
}

func (dctx detachedContext) Err() error {
	return nil
}

func (dctx detachedContext) Value(key interface{}) interface{} {
	return dctx.ctx.Value(key)
}
