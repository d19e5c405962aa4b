package netpack

import (
	"context"
	"time"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// armReadContext maps ctx onto the read deadline of conn. Cancellation
// unblocks a pending read by moving the deadline into the past. The
// returned release function must be called once the read finished.
func armReadContext(ctx context.Context, conn readDeadliner) func() {
	if d, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(d)
	} else {
		conn.SetReadDeadline(time.Time{})
	}
	if ctx.Done() == nil {
		return func() {}
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	return func() { stop() }
}
