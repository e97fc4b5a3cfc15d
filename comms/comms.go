// Package comms provides a transport-agnostic communicator for a fixed-size
// group of cooperating ranks: collective operations submitted against an
// execution stream, tagged asynchronous point-to-point messaging tracked by
// request identifiers, and a fault-aware barrier/stream-sync protocol.
//
// A Communicator is not safe for concurrent use. All request bookkeeping
// happens on the calling goroutine; callers sharing one instance must
// serialize access themselves.
package comms

import (
	"fmt"
	"time"

	"github.com/rocketbitz/rankcomm-go/transport"
)

// DefaultWaitTimeout bounds how long Waitall tolerates zero progress before
// failing.
const DefaultWaitTimeout = 10 * time.Second

// Status is the outcome of SyncStream. Stream faults are discovered long
// after the triggering operation was submitted, so they surface as a value
// the caller must branch on rather than an error unwinding the stack.
type Status int

const (
	// StatusSuccess means all work queued on the stream completed.
	StatusSuccess Status = iota
	// StatusError means the stream faulted, the transport error query
	// failed, or an abort attempt failed.
	StatusError
	// StatusAbort means an asynchronous transport error was detected and
	// the group was aborted successfully. The communicator is unusable
	// afterwards; recreation is the caller's responsibility.
	StatusAbort
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusAbort:
		return "abort"
	default:
		return "status"
	}
}

// Config collects the externally owned collaborators and policy knobs for a
// Communicator. Collective, Allocator, Stream, Ranks, and Rank are required.
// Worker and Endpoints enable point-to-point messaging; leaving them nil
// constructs the communicator in collectives-only mode.
type Config struct {
	Collective transport.Collective
	Allocator  transport.Allocator
	Stream     transport.Stream
	Ranks      int
	Rank       int

	Worker    transport.Worker
	Endpoints []transport.Endpoint

	// WaitTimeout bounds Waitall's zero-progress window. Zero selects
	// DefaultWaitTimeout.
	WaitTimeout time.Duration

	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

// Communicator implements group communication over externally owned
// collective and point-to-point transport handles.
type Communicator struct {
	coll   transport.Collective
	alloc  transport.Allocator
	stream transport.Stream
	nranks int
	rank   int

	worker transport.Worker
	eps    []transport.Endpoint

	waitTimeout time.Duration

	// Scratch pair backing Barrier, alive exactly for the communicator's
	// lifetime.
	barrierSend transport.Buffer
	barrierRecv transport.Buffer

	nextRequestID RequestID
	inFlight      map[RequestID]transport.Request
	freeRequests  map[RequestID]struct{}

	logger           Logger
	structuredLogger StructuredLogger
	tracer           Tracer
	metrics          MetricHook

	closed bool
}

const barrierScratchSize = 4 // one Int32 element

// New constructs a communicator over the supplied collaborators. Supplying
// Worker and a full Endpoints table enables Isend/Irecv/Waitall; without
// them the communicator is collectives-only. The scratch buffer pair used by
// Barrier is allocated here and released by Close.
func New(cfg Config) (*Communicator, error) {
	if cfg.Collective == nil {
		return nil, fmt.Errorf("rankcomm: collective transport required")
	}
	if cfg.Allocator == nil {
		return nil, fmt.Errorf("rankcomm: allocator required")
	}
	if cfg.Stream == nil {
		return nil, fmt.Errorf("rankcomm: stream required")
	}
	if cfg.Ranks <= 0 {
		return nil, fmt.Errorf("rankcomm: rank count must be positive, got %d", cfg.Ranks)
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.Ranks {
		return nil, fmt.Errorf("rankcomm: rank %d out of range [0, %d)", cfg.Rank, cfg.Ranks)
	}
	if cfg.Worker != nil && len(cfg.Endpoints) != cfg.Ranks {
		return nil, fmt.Errorf("rankcomm: endpoint table has %d entries, want %d", len(cfg.Endpoints), cfg.Ranks)
	}

	timeout := cfg.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	structured := cfg.StructuredLogger
	if structured == nil {
		if logger, ok := cfg.Logger.(StructuredLogger); ok {
			structured = logger
		}
	}

	c := &Communicator{
		coll:             cfg.Collective,
		alloc:            cfg.Allocator,
		stream:           cfg.Stream,
		nranks:           cfg.Ranks,
		rank:             cfg.Rank,
		worker:           cfg.Worker,
		eps:              cfg.Endpoints,
		waitTimeout:      timeout,
		inFlight:         make(map[RequestID]transport.Request),
		freeRequests:     make(map[RequestID]struct{}),
		logger:           cfg.Logger,
		structuredLogger: structured,
		tracer:           cfg.Tracer,
		metrics:          cfg.Metrics,
	}

	send, err := cfg.Allocator.Allocate(barrierScratchSize, cfg.Stream)
	if err != nil {
		return nil, fmt.Errorf("rankcomm: allocate barrier send scratch: %w", err)
	}
	recv, err := cfg.Allocator.Allocate(barrierScratchSize, cfg.Stream)
	if err != nil {
		_ = cfg.Allocator.Deallocate(send, barrierScratchSize, cfg.Stream)
		return nil, fmt.Errorf("rankcomm: allocate barrier recv scratch: %w", err)
	}
	c.barrierSend = send
	c.barrierRecv = recv

	c.logEvent("communicator_created",
		logKV("ranks", cfg.Ranks),
		logKV("rank", cfg.Rank),
		logKV("p2p", cfg.Worker != nil),
	)
	return c, nil
}

// Close releases the barrier scratch pair. The externally owned transport
// handles are left untouched. Close is idempotent.
func (c *Communicator) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true

	var first error
	if c.barrierSend != nil {
		if err := c.alloc.Deallocate(c.barrierSend, barrierScratchSize, c.stream); err != nil && first == nil {
			first = err
		}
		c.barrierSend = nil
	}
	if c.barrierRecv != nil {
		if err := c.alloc.Deallocate(c.barrierRecv, barrierScratchSize, c.stream); err != nil && first == nil {
			first = err
		}
		c.barrierRecv = nil
	}
	c.logEvent("communicator_closed", logKV("rank", c.rank))
	return first
}

// Size returns the number of ranks in the group.
func (c *Communicator) Size() int { return c.nranks }

// Rank returns this participant's zero-based index.
func (c *Communicator) Rank() int { return c.rank }

// Split is not supported by this transport combination. Callers must treat
// split support as a capability to probe, not an unconditional guarantee.
func (c *Communicator) Split(color, key int) (*Communicator, error) {
	return nil, ErrNotSupported
}

func (c *Communicator) ensureOpen() error {
	if c == nil || c.closed {
		return ErrClosed
	}
	return nil
}
