// Package transport defines the contracts between the rankcomm communicator
// and its externally owned collaborators: the collective transport group, the
// point-to-point worker and its per-rank endpoints, the device memory
// allocator, and the execution stream. rankcomm never creates or destroys
// these handles; their lifetime belongs to the caller.
package transport

import "errors"

// Datatype identifies an element type at the transport level.
type Datatype uint8

// Transport-native datatype codes.
const (
	DatatypeInt8 Datatype = iota
	DatatypeUint8
	DatatypeInt32
	DatatypeUint32
	DatatypeInt64
	DatatypeUint64
	DatatypeFloat32
	DatatypeFloat64
)

// ReduceOp identifies an elementwise reduction at the transport level.
type ReduceOp uint8

// Transport-native reduction codes.
const (
	ReduceSum ReduceOp = iota
	ReduceProd
	ReduceMin
	ReduceMax
)

// ErrNotReady is returned by Stream.Query while queued work is still pending.
// Any other non-nil Query result is a genuine stream fault.
var ErrNotReady = errors.New("transport: stream not ready")

// Stream represents an ordered asynchronous execution context. Operations
// submitted against the same stream execute in submission order.
type Stream interface {
	// Query reports nil once all work queued on the stream has completed,
	// ErrNotReady while work is still pending, and any other error when the
	// stream itself has faulted.
	Query() error
}

// Buffer is an opaque device buffer obtained from an Allocator.
type Buffer interface {
	// Len returns the buffer length in bytes.
	Len() int
	// Fill enqueues a byte-wise fill of the whole buffer on the stream.
	Fill(value byte, stream Stream) error
	// Slice returns a view of length bytes starting at offset, sharing the
	// underlying storage.
	Slice(offset, length int) (Buffer, error)
}

// Allocator provisions device buffers tied to a stream.
type Allocator interface {
	Allocate(size int, stream Stream) (Buffer, error)
	Deallocate(buf Buffer, size int, stream Stream) error
}

// Collective is the group-wide transport handle. Every rank in the group must
// submit the same sequence of operations with matching parameters; the
// transport does not detect mismatches.
type Collective interface {
	AllReduce(send, recv Buffer, count int, dt Datatype, op ReduceOp, stream Stream) error
	Broadcast(send, recv Buffer, count int, dt Datatype, root int, stream Stream) error
	Reduce(send, recv Buffer, count int, dt Datatype, op ReduceOp, root int, stream Stream) error
	AllGather(send, recv Buffer, count int, dt Datatype, stream Stream) error
	ReduceScatter(send, recv Buffer, count int, dt Datatype, op ReduceOp, stream Stream) error

	// AsyncError reports any asynchronous fault the transport has recorded
	// since the last query. The second return value reports a failure of the
	// query itself.
	AsyncError() (async error, query error)
	// Abort tears down the underlying group after an asynchronous fault. The
	// handle is unusable afterwards regardless of the result.
	Abort() error
}

// Worker drives the point-to-point progress engine. The transport makes no
// progress unless Progress is called; callers drain it until it returns 0.
type Worker interface {
	// Progress advances queued point-to-point operations and returns the
	// number of events progressed.
	Progress() int
}

// Endpoint addresses one peer rank for tagged messaging.
type Endpoint interface {
	// Isend posts a non-blocking tagged send of the first size bytes of buf.
	Isend(buf Buffer, size int, tag uint64) (Request, error)
	// Irecv posts a non-blocking tagged receive into the first size bytes of
	// buf, matching sends whose tag equals tag under mask.
	Irecv(buf Buffer, size int, tag, mask uint64) (Request, error)
}

// Request tracks one in-flight point-to-point operation.
type Request interface {
	// NeedsRelease reports whether completion must be tracked explicitly.
	// When false the operation completed synchronously at submission time.
	NeedsRelease() bool
	// Completed reports whether a tracked operation has finished.
	Completed() bool
	// Err reports a request left in an error state by the transport.
	Err() error
	// Free releases the transport-level request resources. The request must
	// not be used afterwards.
	Free()
}
