package comms

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/rocketbitz/rankcomm-go/transport"
)

const barrierSentinel byte = 1

// Barrier blocks until every rank in the group has reached it. It reduces
// the scratch pair with SUM on the instance stream and then synchronizes the
// stream; anything short of StatusSuccess is fatal, since a barrier fails
// only under total communicator breakdown.
func (c *Communicator) Barrier() error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if err := c.barrierSend.Fill(barrierSentinel, c.stream); err != nil {
		return &TransportError{Op: "barrier", Err: err}
	}
	if err := c.barrierRecv.Fill(barrierSentinel, c.stream); err != nil {
		return &TransportError{Op: "barrier", Err: err}
	}
	if err := c.AllReduce(c.barrierSend, c.barrierRecv, 1, Int32, Sum, c.stream); err != nil {
		return err
	}
	if st := c.SyncStream(c.stream); st != StatusSuccess {
		return fmt.Errorf("rankcomm: barrier stream sync returned %s; a rank may have failed", st)
	}
	c.logEvent("barrier_completed", logKV("rank", c.rank))
	return nil
}

// SyncStream blocks until all work queued on the stream completes,
// distinguishing completion from pending from unrecoverable asynchronous
// transport error. On an asynchronous error the underlying group is aborted:
// StatusAbort when the abort succeeds, StatusError when it fails. After
// either, the communicator must be treated as unusable; rebuilding it is the
// caller's decision, which is why the outcome is a Status value and not an
// error.
func (c *Communicator) SyncStream(stream transport.Stream) Status {
	for {
		err := stream.Query()
		if err == nil {
			return StatusSuccess
		}
		if !errors.Is(err, transport.ErrNotReady) {
			// The stream itself faulted.
			c.logEvent("stream_fault", logKV("error", err))
			return StatusError
		}

		async, queryErr := c.coll.AsyncError()
		if queryErr != nil {
			c.logEvent("async_error_query_failed", logKV("error", queryErr))
			return StatusError
		}
		if async != nil {
			c.logEvent("async_error_detected", logKV("error", async))
			if abortErr := c.coll.Abort(); abortErr != nil {
				c.logEvent("abort_failed", logKV("error", abortErr))
				return StatusError
			}
			c.metricStreamAborted(async)
			return StatusAbort
		}

		// Let the transport's own threads use the CPU.
		runtime.Gosched()
	}
}
