package comms

import (
	"runtime"
	"time"

	"github.com/rocketbitz/rankcomm-go/transport"
)

// Waitall blocks until every listed request has completed, driving the
// transport's progress engine between completion checks; the transport makes
// no progress otherwise. Listed identifiers are released for reuse before
// waiting begins. A window of WaitTimeout with zero progress fails the wait
// with WaitTimeoutError, leaving the unresolved transport requests in an
// undefined state. An empty list returns immediately.
func (c *Communicator) Waitall(ids []RequestID) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if c.worker == nil {
		return ErrNotInitialized
	}

	// Validate before mutating so a bad identifier leaves the in-flight map
	// and free set untouched.
	seen := make(map[RequestID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return &InvalidRequestError{ID: id}
		}
		if _, ok := c.inFlight[id]; !ok {
			return &InvalidRequestError{ID: id}
		}
		seen[id] = struct{}{}
	}

	span := c.startSpan("rankcomm-waitall", logKV("requests", len(ids)))
	pending := make([]transport.Request, 0, len(ids))
	for _, id := range ids {
		pending = append(pending, c.inFlight[id])
		delete(c.inFlight, id)
		c.freeRequests[id] = struct{}{}
	}

	start := time.Now()
	for len(pending) > 0 {
		progressed := false
		for c.worker.Progress() != 0 {
			progressed = true
		}

		// Retain-filter compaction: completed entries are released in place,
		// the rest shift down. No live mutation of shared state here; the
		// pending slice is owned by this call.
		kept := pending[:0]
		for _, req := range pending {
			if req == nil {
				terr := &TransportRequestError{Reason: "request is not a valid transport handle"}
				c.finishSpan(span, terr)
				return terr
			}
			if req.NeedsRelease() {
				if err := req.Err(); err != nil {
					terr := &TransportRequestError{Reason: "request in error state", Err: err}
					c.finishSpan(span, terr)
					return terr
				}
			}
			if !req.NeedsRelease() || req.Completed() {
				req.Free()
				progressed = true
				continue
			}
			kept = append(kept, req)
		}
		pending = kept

		if progressed {
			start = time.Now()
			continue
		}
		if elapsed := time.Since(start); elapsed >= c.waitTimeout {
			err := &WaitTimeoutError{Pending: len(pending), Elapsed: elapsed}
			c.logEvent("wait_timeout", logKV("pending", len(pending)), logKV("elapsed", elapsed))
			c.metricWaitTimedOut(err)
			c.finishSpan(span, err)
			return err
		}
		runtime.Gosched()
	}

	c.logEvent("wait_completed", logKV("requests", len(ids)))
	c.metricRequestCompleted(len(ids))
	c.finishSpan(span, nil)
	return nil
}
