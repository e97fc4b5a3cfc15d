package comms

import (
	"fmt"

	"github.com/rocketbitz/rankcomm-go/transport"
)

// tagMaskFull matches the full composed tag, rank half included.
const tagMaskFull = ^uint64(0)

// wireTag composes the user tag with the contributing rank so that exchanges
// between different peer pairs cannot cross-match on equal user tags.
func wireTag(tag, rank int) uint64 {
	return uint64(uint32(rank))<<32 | uint64(uint32(tag))
}

// Isend posts a non-blocking tagged send of the first size bytes of buf to
// dest. It returns a request identifier immediately; completion is only
// observable through Waitall. The communicator must have been constructed
// with a point-to-point worker.
func (c *Communicator) Isend(buf transport.Buffer, size, dest, tag int) (RequestID, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}
	if c.worker == nil {
		return 0, ErrNotInitialized
	}
	if dest < 0 || dest >= c.nranks {
		return 0, fmt.Errorf("rankcomm: isend destination %d out of range [0, %d)", dest, c.nranks)
	}

	id := c.allocateRequestID()
	req, err := c.eps[dest].Isend(buf, size, wireTag(tag, c.rank))
	if err != nil {
		c.freeRequests[id] = struct{}{}
		terr := &TransportError{Op: "isend", Err: err}
		c.metricRequestFailed("send", terr)
		return 0, terr
	}
	c.inFlight[id] = req

	c.logEvent("send_posted",
		logKV("request", id),
		logKV("dest", dest),
		logKV("tag", tag),
		logKV("size", size),
	)
	c.metricRequestPosted("send")
	return id, nil
}

// Irecv posts a non-blocking tagged receive into the first size bytes of buf
// from source. Semantics mirror Isend.
func (c *Communicator) Irecv(buf transport.Buffer, size, source, tag int) (RequestID, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}
	if c.worker == nil {
		return 0, ErrNotInitialized
	}
	if source < 0 || source >= c.nranks {
		return 0, fmt.Errorf("rankcomm: irecv source %d out of range [0, %d)", source, c.nranks)
	}

	id := c.allocateRequestID()
	req, err := c.eps[source].Irecv(buf, size, wireTag(tag, source), tagMaskFull)
	if err != nil {
		c.freeRequests[id] = struct{}{}
		terr := &TransportError{Op: "irecv", Err: err}
		c.metricRequestFailed("recv", terr)
		return 0, terr
	}
	c.inFlight[id] = req

	c.logEvent("recv_posted",
		logKV("request", id),
		logKV("source", source),
		logKV("tag", tag),
		logKV("size", size),
	)
	c.metricRequestPosted("recv")
	return id, nil
}
