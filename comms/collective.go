package comms

import (
	"fmt"

	"github.com/rocketbitz/rankcomm-go/transport"
)

// Collective operations are asynchronous relative to the caller: they return
// once queued on the supplied stream. Every rank must invoke the same
// sequence of collectives with matching parameters, or the group deadlocks
// or corrupts data; the contract is the caller's to uphold, not enforced
// here.

// submitCollective funnels every collective transport call through one
// fallible wrapper, translating non-success into a TransportError.
func (c *Communicator) submitCollective(op string, fn func() error) error {
	if err := fn(); err != nil {
		terr := &TransportError{Op: op, Err: err}
		c.logEvent("collective_failed", logKV("op", op), logKV("error", terr))
		c.metricCollectiveFailed(op, terr)
		return terr
	}
	c.logEvent("collective_submitted", logKV("op", op))
	c.metricCollectiveSubmitted(op)
	return nil
}

// AllReduce reduces count elements elementwise across all ranks and
// replicates the identical result into every rank's recv buffer.
func (c *Communicator) AllReduce(send, recv transport.Buffer, count int, dt Datatype, op Op, stream transport.Stream) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	ndt, err := nativeDatatype(dt)
	if err != nil {
		return err
	}
	nop, err := nativeOp(op)
	if err != nil {
		return err
	}
	return c.submitCollective("allreduce", func() error {
		return c.coll.AllReduce(send, recv, count, ndt, nop, stream)
	})
}

// Broadcast copies count elements from root's send buffer into every rank's
// recv buffer. Non-root send buffers are not read.
func (c *Communicator) Broadcast(send, recv transport.Buffer, count int, dt Datatype, root int, stream transport.Stream) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	ndt, err := nativeDatatype(dt)
	if err != nil {
		return err
	}
	if err := c.checkRoot(root); err != nil {
		return err
	}
	return c.submitCollective("broadcast", func() error {
		return c.coll.Broadcast(send, recv, count, ndt, root, stream)
	})
}

// BroadcastInPlace broadcasts root's buffer into the same buffer on every
// rank.
func (c *Communicator) BroadcastInPlace(buf transport.Buffer, count int, dt Datatype, root int, stream transport.Stream) error {
	return c.Broadcast(buf, buf, count, dt, root, stream)
}

// Reduce reduces count elements elementwise across all ranks, materializing
// the result only in root's recv buffer; other ranks' recv contents are
// unspecified.
func (c *Communicator) Reduce(send, recv transport.Buffer, count int, dt Datatype, op Op, root int, stream transport.Stream) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	ndt, err := nativeDatatype(dt)
	if err != nil {
		return err
	}
	nop, err := nativeOp(op)
	if err != nil {
		return err
	}
	if err := c.checkRoot(root); err != nil {
		return err
	}
	return c.submitCollective("reduce", func() error {
		return c.coll.Reduce(send, recv, count, ndt, nop, root, stream)
	})
}

// AllGather concatenates each rank's sendcount elements into recv in rank
// order on every rank.
func (c *Communicator) AllGather(send, recv transport.Buffer, sendcount int, dt Datatype, stream transport.Stream) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	ndt, err := nativeDatatype(dt)
	if err != nil {
		return err
	}
	return c.submitCollective("allgather", func() error {
		return c.coll.AllGather(send, recv, sendcount, ndt, stream)
	})
}

// AllGatherV gathers a variable number of elements from each rank: rank r's
// send buffer lands in every rank's recv buffer at element offset displs[r].
// The transport has no native variable-count gather, so this issues one
// broadcast per rank — O(ranks) operations accepted for portability.
func (c *Communicator) AllGatherV(send, recv transport.Buffer, recvcounts, displs []int, dt Datatype, stream transport.Stream) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	ndt, err := nativeDatatype(dt)
	if err != nil {
		return err
	}
	width, err := DatatypeSize(dt)
	if err != nil {
		return err
	}
	if len(recvcounts) != c.nranks {
		return fmt.Errorf("rankcomm: allgatherv recvcounts has %d entries, want %d", len(recvcounts), c.nranks)
	}
	if len(displs) != c.nranks {
		return fmt.Errorf("rankcomm: allgatherv displs has %d entries, want %d", len(displs), c.nranks)
	}

	for root := 0; root < c.nranks; root++ {
		if recvcounts[root] < 0 || displs[root] < 0 {
			return fmt.Errorf("rankcomm: allgatherv negative count or displacement for rank %d", root)
		}
		view, err := recv.Slice(displs[root]*width, recvcounts[root]*width)
		if err != nil {
			return &TransportError{Op: "allgatherv", Err: err}
		}
		count := recvcounts[root]
		if err := c.submitCollective("allgatherv", func() error {
			return c.coll.Broadcast(send, view, count, ndt, root, stream)
		}); err != nil {
			return err
		}
	}
	return nil
}

// ReduceScatter reduces across ranks and scatters a distinct recvcount-sized
// shard of the result to each rank.
func (c *Communicator) ReduceScatter(send, recv transport.Buffer, recvcount int, dt Datatype, op Op, stream transport.Stream) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	ndt, err := nativeDatatype(dt)
	if err != nil {
		return err
	}
	nop, err := nativeOp(op)
	if err != nil {
		return err
	}
	return c.submitCollective("reducescatter", func() error {
		return c.coll.ReduceScatter(send, recv, recvcount, ndt, nop, stream)
	})
}

func (c *Communicator) checkRoot(root int) error {
	if root < 0 || root >= c.nranks {
		return fmt.Errorf("rankcomm: root %d out of range [0, %d)", root, c.nranks)
	}
	return nil
}
