package comms

import (
	"testing"

	"github.com/rocketbitz/rankcomm-go/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubBuffer struct {
	data []byte
}

func (b *stubBuffer) Len() int { return len(b.data) }

func (b *stubBuffer) Fill(value byte, _ transport.Stream) error {
	for i := range b.data {
		b.data[i] = value
	}
	return nil
}

func (b *stubBuffer) Slice(offset, length int) (transport.Buffer, error) {
	return &stubBuffer{data: b.data[offset : offset+length]}, nil
}

type stubAllocator struct {
	live      int
	allocs    int
	failAfter int // fail the (failAfter+1)-th allocation when > -1
}

func newStubAllocator() *stubAllocator { return &stubAllocator{failAfter: -1} }

func (a *stubAllocator) Allocate(size int, _ transport.Stream) (transport.Buffer, error) {
	if a.failAfter >= 0 && a.allocs >= a.failAfter {
		return nil, &transport.Error{Code: 12, Message: "out of memory"}
	}
	a.allocs++
	a.live++
	return &stubBuffer{data: make([]byte, size)}, nil
}

func (a *stubAllocator) Deallocate(_ transport.Buffer, _ int, _ transport.Stream) error {
	a.live--
	return nil
}

type stubStream struct {
	results []error
	queries int
}

// Query pops the next scripted result, repeating the last one forever.
func (s *stubStream) Query() error {
	s.queries++
	if len(s.results) == 0 {
		return nil
	}
	res := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return res
}

type stubCollective struct {
	calls    []string
	failWith error

	asyncErr error
	queryErr error
	abortErr error
	aborts   int
}

func (c *stubCollective) record(op string) error {
	c.calls = append(c.calls, op)
	return c.failWith
}

func (c *stubCollective) AllReduce(_, _ transport.Buffer, _ int, _ transport.Datatype, _ transport.ReduceOp, _ transport.Stream) error {
	return c.record("allreduce")
}

func (c *stubCollective) Broadcast(_, _ transport.Buffer, _ int, _ transport.Datatype, _ int, _ transport.Stream) error {
	return c.record("broadcast")
}

func (c *stubCollective) Reduce(_, _ transport.Buffer, _ int, _ transport.Datatype, _ transport.ReduceOp, _ int, _ transport.Stream) error {
	return c.record("reduce")
}

func (c *stubCollective) AllGather(_, _ transport.Buffer, _ int, _ transport.Datatype, _ transport.Stream) error {
	return c.record("allgather")
}

func (c *stubCollective) ReduceScatter(_, _ transport.Buffer, _ int, _ transport.Datatype, _ transport.ReduceOp, _ transport.Stream) error {
	return c.record("reducescatter")
}

func (c *stubCollective) AsyncError() (error, error) { return c.asyncErr, c.queryErr }

func (c *stubCollective) Abort() error {
	c.aborts++
	return c.abortErr
}

type stubWorker struct {
	progressFn func() int
}

func (w *stubWorker) Progress() int {
	if w.progressFn == nil {
		return 0
	}
	return w.progressFn()
}

type stubRequest struct {
	needsRelease bool
	completed    bool
	err          error
	freed        bool
}

func (r *stubRequest) NeedsRelease() bool { return r.needsRelease }
func (r *stubRequest) Completed() bool    { return r.completed }
func (r *stubRequest) Err() error         { return r.err }
func (r *stubRequest) Free()              { r.freed = true }

type stubEndpoint struct {
	lastSize int
	lastTag  uint64
	req      transport.Request
	err      error
}

func (e *stubEndpoint) Isend(_ transport.Buffer, size int, tag uint64) (transport.Request, error) {
	e.lastSize, e.lastTag = size, tag
	if e.err != nil {
		return nil, e.err
	}
	return e.req, nil
}

func (e *stubEndpoint) Irecv(_ transport.Buffer, size int, tag, _ uint64) (transport.Request, error) {
	e.lastSize, e.lastTag = size, tag
	if e.err != nil {
		return nil, e.err
	}
	return e.req, nil
}

type testCommOption func(*Config)

func withWorker(w transport.Worker, eps []transport.Endpoint) testCommOption {
	return func(cfg *Config) {
		cfg.Worker = w
		cfg.Endpoints = eps
	}
}

func newTestComm(t *testing.T, opts ...testCommOption) *Communicator {
	t.Helper()
	cfg := Config{
		Collective: &stubCollective{},
		Allocator:  newStubAllocator(),
		Stream:     &stubStream{},
		Ranks:      2,
		Rank:       0,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newObservedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	return logger.Sugar(), logs
}
