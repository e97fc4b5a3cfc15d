package comms

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotInitialized indicates a point-to-point operation on a
	// communicator constructed in collectives-only mode.
	ErrNotInitialized = errors.New("rankcomm: point-to-point transport not initialized on communicator")
	// ErrNotSupported indicates a capability genuinely absent in this
	// backend. Callers must probe split support, not assume it.
	ErrNotSupported = errors.New("rankcomm: capability not supported")
	// ErrTimeout indicates that a wait operation observed no progress within
	// the configured bound.
	ErrTimeout = errors.New("rankcomm: wait timed out")
	// ErrClosed indicates use of a communicator after Close.
	ErrClosed = errors.New("rankcomm: communicator closed")
)

// UnsupportedTypeError reports a datatype outside the supported set.
type UnsupportedTypeError struct {
	Datatype Datatype
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("rankcomm: unsupported datatype %d", uint8(e.Datatype))
}

// UnsupportedOpError reports a reduction operation outside the supported set.
type UnsupportedOpError struct {
	Op Op
}

func (e *UnsupportedOpError) Error() string {
	return fmt.Sprintf("rankcomm: unsupported reduction op %d", uint8(e.Op))
}

// InvalidRequestError reports a request identifier passed to Waitall that is
// not currently in flight.
type InvalidRequestError struct {
	ID RequestID
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("rankcomm: waitall on invalid request %d", e.ID)
}

// TransportRequestError reports an in-flight transport request found in a
// malformed or errored state during Waitall.
type TransportRequestError struct {
	Reason string
	Err    error
}

func (e *TransportRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rankcomm: transport request error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("rankcomm: transport request error: %s", e.Reason)
}

func (e *TransportRequestError) Unwrap() error { return e.Err }

// WaitTimeoutError reports a Waitall that saw no progress within the bound.
// The underlying transport requests are left in an undefined state; the
// timeout only stops the caller from waiting further.
type WaitTimeoutError struct {
	Pending int
	Elapsed time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("rankcomm: timed out waiting for requests: %d still pending after %s", e.Pending, e.Elapsed)
}

func (e *WaitTimeoutError) Unwrap() error { return ErrTimeout }

// TransportError wraps a non-success result from the underlying transport.
// It is fatal to the submitting call; retry policy belongs to the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rankcomm: %s failed: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is / errors.As to match the native transport error.
func (e *TransportError) Unwrap() error { return e.Err }
