// Package scanctl implements the Scan Controller (spec.md §4.2): a
// runtime-adaptive cap on per-host port-scan batch size. A worker that
// hits file-descriptor exhaustion mid-connect reports it here; the
// controller clamps the effective batch size for all subsequent work.
// The cap is monotonic-non-increasing for the lifetime of a session —
// it never recovers mid-session, only at the next session's budgeter
// recomputation.
package scanctl

import "sync/atomic"

// Controller holds the live batch-size cap shared by every deep-scan
// worker in a session.
type Controller struct {
	batchSize atomic.Int64
}

// New returns a Controller starting at initialBatchSize, the value the
// Resource Budgeter computed for this session.
func New(initialBatchSize int) *Controller {
	c := &Controller{}
	c.batchSize.Store(int64(initialBatchSize))
	return c
}

// BatchSize returns the current effective batch size.
func (c *Controller) BatchSize() int {
	return int(c.batchSize.Load())
}

// ReportExhaustion is called by a worker that observed FD exhaustion
// while connecting. It clamps the batch size down to at most half its
// current value (never below 1), and never raises it — concurrent
// callers racing this only ever push the value down.
func (c *Controller) ReportExhaustion() {
	for {
		current := c.batchSize.Load()
		reduced := current / 2
		if reduced < 1 {
			reduced = 1
		}
		if reduced >= current {
			return
		}
		if c.batchSize.CompareAndSwap(current, reduced) {
			return
		}
	}
}
