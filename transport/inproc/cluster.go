// Package inproc provides an in-process implementation of the transport
// contracts: a fixed-size group of ranks sharing host memory, rendezvous
// collectives, and a progress-driven tagged point-to-point queue. It backs
// tests and examples; ranks are expected to run on separate goroutines.
package inproc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rocketbitz/rankcomm-go/transport"
)

// Cluster is a group of n in-process ranks sharing one collective engine and
// one point-to-point message queue.
type Cluster struct {
	id uuid.UUID
	n  int

	mu sync.Mutex

	ops    []*pendingOp
	nextOp []int

	sends []*pendingSend
	recvs [][]*pendingRecv

	asyncErr error
	aborted  bool
}

// NewCluster creates an in-process group of n ranks.
func NewCluster(n int) (*Cluster, error) {
	if n <= 0 {
		return nil, errors.Errorf("inproc: cluster size must be positive, got %d", n)
	}
	return &Cluster{
		id:     uuid.New(),
		n:      n,
		nextOp: make([]int, n),
		recvs:  make([][]*pendingRecv, n),
	}, nil
}

// ID returns the unique identity of this group.
func (c *Cluster) ID() uuid.UUID { return c.id }

// Size returns the number of ranks in the group.
func (c *Cluster) Size() int { return c.n }

// Collective returns rank's handle on the shared collective engine.
func (c *Cluster) Collective(rank int) transport.Collective {
	return &groupComm{c: c, rank: rank}
}

// Worker returns rank's progress engine for point-to-point messaging.
func (c *Cluster) Worker(rank int) transport.Worker {
	return &Worker{c: c, rank: rank}
}

// Endpoints returns rank's endpoint table: entry j addresses peer rank j.
func (c *Cluster) Endpoints(rank int) []transport.Endpoint {
	eps := make([]transport.Endpoint, c.n)
	for peer := 0; peer < c.n; peer++ {
		eps[peer] = &Endpoint{c: c, owner: rank, peer: peer}
	}
	return eps
}

// InjectAsyncError records an asynchronous fault that subsequent AsyncError
// queries will report, as a transport would after a peer failure.
func (c *Cluster) InjectAsyncError(err error) {
	c.mu.Lock()
	c.asyncErr = err
	c.mu.Unlock()
}

// Aborted reports whether the group has been torn down by Abort.
func (c *Cluster) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

var errAborted = &transport.Error{Code: 6, Message: "inproc: communicator aborted"}

// abortLocked poisons the group: queued collectives fail, new submissions
// are rejected. Callers hold c.mu.
func (c *Cluster) abortLocked() {
	if c.aborted {
		return
	}
	c.aborted = true
	for _, op := range c.ops {
		if op.arrived < c.n {
			if op.err == nil {
				op.err = errAborted
			}
			op.arrived = c.n
			close(op.done)
		}
	}
	c.sends = nil
	for i := range c.recvs {
		c.recvs[i] = nil
	}
}
