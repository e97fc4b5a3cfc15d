package inproc

import (
	"github.com/pkg/errors"

	"github.com/rocketbitz/rankcomm-go/transport"
)

// groupComm is one rank's handle on the shared collective engine. An
// operation executes once every rank has submitted the matching call; the
// last arriver computes the result on host memory and releases the rest.
// Submissions therefore block until the whole group has arrived, which is
// why ranks must run on separate goroutines.
type groupComm struct {
	c    *Cluster
	rank int
}

var _ transport.Collective = (*groupComm)(nil)

type pendingOp struct {
	kind  string
	count int
	dt    transport.Datatype
	op    transport.ReduceOp
	root  int

	sends   []transport.Buffer
	recvs   []transport.Buffer
	arrived int
	done    chan struct{}
	err     error
}

func (g *groupComm) AllReduce(send, recv transport.Buffer, count int, dt transport.Datatype, op transport.ReduceOp, _ transport.Stream) error {
	return g.submit(&pendingOp{kind: "allreduce", count: count, dt: dt, op: op, root: -1}, send, recv)
}

func (g *groupComm) Broadcast(send, recv transport.Buffer, count int, dt transport.Datatype, root int, _ transport.Stream) error {
	return g.submit(&pendingOp{kind: "broadcast", count: count, dt: dt, root: root}, send, recv)
}

func (g *groupComm) Reduce(send, recv transport.Buffer, count int, dt transport.Datatype, op transport.ReduceOp, root int, _ transport.Stream) error {
	return g.submit(&pendingOp{kind: "reduce", count: count, dt: dt, op: op, root: root}, send, recv)
}

func (g *groupComm) AllGather(send, recv transport.Buffer, count int, dt transport.Datatype, _ transport.Stream) error {
	return g.submit(&pendingOp{kind: "allgather", count: count, dt: dt, root: -1}, send, recv)
}

func (g *groupComm) ReduceScatter(send, recv transport.Buffer, count int, dt transport.Datatype, op transport.ReduceOp, _ transport.Stream) error {
	return g.submit(&pendingOp{kind: "reducescatter", count: count, dt: dt, op: op, root: -1}, send, recv)
}

func (g *groupComm) AsyncError() (async error, query error) {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	return g.c.asyncErr, nil
}

func (g *groupComm) Abort() error {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	g.c.abortLocked()
	return nil
}

func (g *groupComm) submit(want *pendingOp, send, recv transport.Buffer) error {
	c := g.c
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return errAborted
	}

	idx := c.nextOp[g.rank]
	var op *pendingOp
	if idx == len(c.ops) {
		op = want
		op.sends = make([]transport.Buffer, c.n)
		op.recvs = make([]transport.Buffer, c.n)
		op.done = make(chan struct{})
		c.ops = append(c.ops, op)
	} else {
		op = c.ops[idx]
		if op.kind != want.kind || op.count != want.count || op.dt != want.dt || op.op != want.op || op.root != want.root {
			if op.err == nil {
				op.err = errors.Errorf("inproc: mismatched collective: rank %d submitted %s(count=%d dt=%d op=%d root=%d), group is running %s(count=%d dt=%d op=%d root=%d)",
					g.rank, want.kind, want.count, want.dt, want.op, want.root,
					op.kind, op.count, op.dt, op.op, op.root)
			}
		}
	}

	op.sends[g.rank] = send
	op.recvs[g.rank] = recv
	op.arrived++
	c.nextOp[g.rank]++

	if op.arrived == c.n {
		if op.err == nil {
			op.err = c.execute(op)
		}
		close(op.done)
	}
	done := op.done
	c.mu.Unlock()

	<-done
	return op.err
}

// execute runs with c.mu held; all ranks are parked on op.done.
func (c *Cluster) execute(op *pendingOp) error {
	width, err := datatypeWidth(op.dt)
	if err != nil {
		return err
	}
	chunk := op.count * width

	switch op.kind {
	case "allreduce":
		acc, err := c.foldSends(op, chunk)
		if err != nil {
			return err
		}
		for r := 0; r < c.n; r++ {
			dst, err := hostBytes(op.recvs[r], chunk)
			if err != nil {
				return err
			}
			copy(dst, acc)
		}
	case "broadcast":
		src, err := hostBytes(op.sends[op.root], chunk)
		if err != nil {
			return err
		}
		for r := 0; r < c.n; r++ {
			dst, err := hostBytes(op.recvs[r], chunk)
			if err != nil {
				return err
			}
			copy(dst, src)
		}
	case "reduce":
		acc, err := c.foldSends(op, chunk)
		if err != nil {
			return err
		}
		dst, err := hostBytes(op.recvs[op.root], chunk)
		if err != nil {
			return err
		}
		copy(dst, acc)
	case "allgather":
		for r := 0; r < c.n; r++ {
			src, err := hostBytes(op.sends[r], chunk)
			if err != nil {
				return err
			}
			for dst := 0; dst < c.n; dst++ {
				out, err := hostBytes(op.recvs[dst], c.n*chunk)
				if err != nil {
					return err
				}
				copy(out[r*chunk:(r+1)*chunk], src)
			}
		}
	case "reducescatter":
		acc, err := c.foldSends(op, c.n*chunk)
		if err != nil {
			return err
		}
		for r := 0; r < c.n; r++ {
			dst, err := hostBytes(op.recvs[r], chunk)
			if err != nil {
				return err
			}
			copy(dst, acc[r*chunk:(r+1)*chunk])
		}
	default:
		return errors.Errorf("inproc: unknown collective %q", op.kind)
	}
	return nil
}

// foldSends reduces every rank's first size bytes elementwise into a fresh
// accumulator.
func (c *Cluster) foldSends(op *pendingOp, size int) ([]byte, error) {
	acc := make([]byte, size)
	first, err := hostBytes(op.sends[0], size)
	if err != nil {
		return nil, err
	}
	copy(acc, first)
	for r := 1; r < c.n; r++ {
		src, err := hostBytes(op.sends[r], size)
		if err != nil {
			return nil, err
		}
		if err := reduceBytes(acc, src, op.dt, op.op); err != nil {
			return nil, err
		}
	}
	return acc, nil
}
