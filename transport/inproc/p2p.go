package inproc

import (
	"sync/atomic"

	"github.com/rocketbitz/rankcomm-go/transport"
)

type pendingSend struct {
	from, to int
	tag      uint64
	data     []byte
	req      *request
}

type pendingRecv struct {
	tag, mask uint64
	buf       []byte
	req       *request
}

// request tracks one posted send or receive.
type request struct {
	completed atomic.Bool
	freed     atomic.Bool
}

var _ transport.Request = (*request)(nil)

func (r *request) NeedsRelease() bool { return true }
func (r *request) Completed() bool    { return r.completed.Load() }
func (r *request) Err() error         { return nil }
func (r *request) Free()              { r.freed.Store(true) }

// Worker drives the shared message queue. Nothing moves between ranks unless
// some rank calls Progress; there is no background delivery thread.
type Worker struct {
	c    *Cluster
	rank int
}

var _ transport.Worker = (*Worker)(nil)

// Progress matches posted sends against posted receives and returns the
// number of pairs delivered. The queue is shared, so progress on any rank's
// worker advances the whole group.
func (w *Worker) Progress() int {
	c := w.c
	c.mu.Lock()
	defer c.mu.Unlock()

	matched := 0
	for i := 0; i < len(c.sends); {
		s := c.sends[i]
		j := matchRecvLocked(c.recvs[s.to], s.tag)
		if j < 0 {
			i++
			continue
		}
		r := c.recvs[s.to][j]
		copy(r.buf, s.data)
		s.req.completed.Store(true)
		r.req.completed.Store(true)
		c.recvs[s.to] = append(c.recvs[s.to][:j], c.recvs[s.to][j+1:]...)
		c.sends = append(c.sends[:i], c.sends[i+1:]...)
		matched++
	}
	return matched
}

func matchRecvLocked(recvs []*pendingRecv, tag uint64) int {
	for j, r := range recvs {
		if tag&r.mask == r.tag&r.mask {
			return j
		}
	}
	return -1
}

// Endpoint addresses one peer from one rank's endpoint table.
type Endpoint struct {
	c           *Cluster
	owner, peer int
}

var _ transport.Endpoint = (*Endpoint)(nil)

// Isend posts a tagged send of the first size bytes of buf to the peer rank.
// The payload is captured at post time; delivery waits for Progress.
func (e *Endpoint) Isend(buf transport.Buffer, size int, tag uint64) (transport.Request, error) {
	data, err := hostBytes(buf, size)
	if err != nil {
		return nil, err
	}

	c := e.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		return nil, errAborted
	}

	s := &pendingSend{
		from: e.owner,
		to:   e.peer,
		tag:  tag,
		data: append([]byte(nil), data...),
		req:  &request{},
	}
	c.sends = append(c.sends, s)
	return s.req, nil
}

// Irecv posts a tagged receive into the first size bytes of buf on the
// owning rank, matching sends whose tag equals tag under mask.
func (e *Endpoint) Irecv(buf transport.Buffer, size int, tag, mask uint64) (transport.Request, error) {
	dst, err := hostBytes(buf, size)
	if err != nil {
		return nil, err
	}

	c := e.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		return nil, errAborted
	}

	r := &pendingRecv{tag: tag, mask: mask, buf: dst, req: &request{}}
	c.recvs[e.owner] = append(c.recvs[e.owner], r)
	return r.req, nil
}
