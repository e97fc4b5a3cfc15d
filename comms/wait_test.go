package comms

import (
	"errors"
	"testing"
	"time"

	"github.com/rocketbitz/rankcomm-go/transport"
)

func TestWaitallEmptyListReturnsImmediately(t *testing.T) {
	c := newTestComm(t, withWorker(&stubWorker{}, []transport.Endpoint{&stubEndpoint{}, &stubEndpoint{}}))
	if err := c.Waitall(nil); err != nil {
		t.Fatalf("Waitall(nil): %v", err)
	}
	if err := c.Waitall([]RequestID{}); err != nil {
		t.Fatalf("Waitall(empty): %v", err)
	}
}

func TestWaitallRequiresWorker(t *testing.T) {
	c := newTestComm(t)
	if err := c.Waitall(nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Waitall without worker: got %v want ErrNotInitialized", err)
	}
}

func TestWaitallInvalidRequestLeavesStateUntouched(t *testing.T) {
	ep := &stubEndpoint{req: &stubRequest{needsRelease: true, completed: true}}
	c := newTestComm(t, withWorker(&stubWorker{}, []transport.Endpoint{ep, ep}))

	buf := &stubBuffer{data: make([]byte, 4)}
	id, err := c.Isend(buf, 4, 1, 0)
	if err != nil {
		t.Fatalf("Isend: %v", err)
	}

	err = c.Waitall([]RequestID{id, 99})
	var invalid *InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidRequestError, got %v", err)
	}
	if invalid.ID != 99 {
		t.Fatalf("unexpected identifier in error: %d", invalid.ID)
	}

	// The valid request must still be in flight and waitable.
	if len(c.inFlight) != 1 || len(c.freeRequests) != 0 {
		t.Fatalf("state mutated by failed validation: inflight=%d free=%d", len(c.inFlight), len(c.freeRequests))
	}
	if err := c.Waitall([]RequestID{id}); err != nil {
		t.Fatalf("Waitall after failed validation: %v", err)
	}
}

func TestWaitallRejectsDuplicateIdentifiers(t *testing.T) {
	ep := &stubEndpoint{req: &stubRequest{needsRelease: true, completed: true}}
	c := newTestComm(t, withWorker(&stubWorker{}, []transport.Endpoint{ep, ep}))

	buf := &stubBuffer{data: make([]byte, 4)}
	id, err := c.Isend(buf, 4, 1, 0)
	if err != nil {
		t.Fatalf("Isend: %v", err)
	}

	err = c.Waitall([]RequestID{id, id})
	var invalid *InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidRequestError for duplicate, got %v", err)
	}
	if len(c.inFlight) != 1 {
		t.Fatalf("duplicate validation mutated in-flight map: %d entries", len(c.inFlight))
	}
}

func TestWaitallFreesSynchronouslyCompletedRequest(t *testing.T) {
	// NeedsRelease false models a transport call that completed inline and
	// returned a handle with no release obligation.
	req := &stubRequest{needsRelease: false}
	ep := &stubEndpoint{req: req}
	c := newTestComm(t, withWorker(&stubWorker{}, []transport.Endpoint{ep, ep}))

	buf := &stubBuffer{data: make([]byte, 4)}
	id, err := c.Irecv(buf, 4, 1, 0)
	if err != nil {
		t.Fatalf("Irecv: %v", err)
	}
	if err := c.Waitall([]RequestID{id}); err != nil {
		t.Fatalf("Waitall: %v", err)
	}
	if !req.freed {
		t.Fatal("synchronously completed request was not freed")
	}
}

func TestWaitallDrivesProgressUntilCompletion(t *testing.T) {
	req := &stubRequest{needsRelease: true}
	ep := &stubEndpoint{req: req}

	// The request completes only after three progress calls, so returning
	// without polling the worker would spin forever.
	rounds := 0
	worker := &stubWorker{progressFn: func() int {
		rounds++
		if rounds == 3 {
			req.completed = true
			return 1
		}
		return 0
	}}
	c := newTestComm(t, withWorker(worker, []transport.Endpoint{ep, ep}))

	buf := &stubBuffer{data: make([]byte, 4)}
	id, err := c.Isend(buf, 4, 1, 0)
	if err != nil {
		t.Fatalf("Isend: %v", err)
	}
	if err := c.Waitall([]RequestID{id}); err != nil {
		t.Fatalf("Waitall: %v", err)
	}
	if rounds < 3 {
		t.Fatalf("progress engine polled %d times, want at least 3", rounds)
	}
	if !req.freed {
		t.Fatal("completed request was not freed")
	}
}

func TestWaitallTimesOutWithoutProgress(t *testing.T) {
	req := &stubRequest{needsRelease: true} // never completes
	ep := &stubEndpoint{req: req}
	c := newTestComm(t,
		withWorker(&stubWorker{}, []transport.Endpoint{ep, ep}),
		func(cfg *Config) { cfg.WaitTimeout = 30 * time.Millisecond },
	)

	buf := &stubBuffer{data: make([]byte, 4)}
	id, err := c.Isend(buf, 4, 1, 0)
	if err != nil {
		t.Fatalf("Isend: %v", err)
	}

	err = c.Waitall([]RequestID{id})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	var timeout *WaitTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected WaitTimeoutError, got %v", err)
	}
	if timeout.Pending != 1 {
		t.Fatalf("unexpected pending count: %d", timeout.Pending)
	}
	if timeout.Elapsed < 30*time.Millisecond {
		t.Fatalf("timed out before the bound: %s", timeout.Elapsed)
	}
}

func TestWaitallProgressResetsTimeoutWindow(t *testing.T) {
	first := &stubRequest{needsRelease: true}
	second := &stubRequest{needsRelease: true}
	reqs := []*stubRequest{first, second}
	ep := &stubEndpoint{}

	// Completions arrive 60ms apart against a 100ms zero-progress bound:
	// each completion must reset the window or the second would time out.
	start := time.Now()
	worker := &stubWorker{progressFn: func() int {
		elapsed := time.Since(start)
		if elapsed > 60*time.Millisecond && !first.completed {
			first.completed = true
			return 1
		}
		if elapsed > 120*time.Millisecond && !second.completed {
			second.completed = true
			return 1
		}
		return 0
	}}
	c := newTestComm(t,
		withWorker(worker, []transport.Endpoint{ep, ep}),
		func(cfg *Config) { cfg.WaitTimeout = 100 * time.Millisecond },
	)

	buf := &stubBuffer{data: make([]byte, 4)}
	ids := make([]RequestID, 0, len(reqs))
	for _, req := range reqs {
		ep.req = req
		id, err := c.Isend(buf, 4, 1, 0)
		if err != nil {
			t.Fatalf("Isend: %v", err)
		}
		ids = append(ids, id)
	}

	if err := c.Waitall(ids); err != nil {
		t.Fatalf("Waitall: %v", err)
	}
}

func TestWaitallSurfacesRequestErrorState(t *testing.T) {
	cause := errors.New("remote endpoint vanished")
	req := &stubRequest{needsRelease: true, err: cause}
	ep := &stubEndpoint{req: req}
	c := newTestComm(t, withWorker(&stubWorker{}, []transport.Endpoint{ep, ep}))

	buf := &stubBuffer{data: make([]byte, 4)}
	id, err := c.Irecv(buf, 4, 1, 0)
	if err != nil {
		t.Fatalf("Irecv: %v", err)
	}

	err = c.Waitall([]RequestID{id})
	var reqErr *TransportRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected TransportRequestError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("error does not wrap the transport cause: %v", err)
	}
}

func TestWaitallRejectsNilTransportHandle(t *testing.T) {
	ep := &stubEndpoint{req: &stubRequest{needsRelease: true, completed: true}}
	c := newTestComm(t, withWorker(&stubWorker{}, []transport.Endpoint{ep, ep}))

	buf := &stubBuffer{data: make([]byte, 4)}
	id, err := c.Isend(buf, 4, 1, 0)
	if err != nil {
		t.Fatalf("Isend: %v", err)
	}
	c.inFlight[id] = nil

	err = c.Waitall([]RequestID{id})
	var reqErr *TransportRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected TransportRequestError, got %v", err)
	}
}
