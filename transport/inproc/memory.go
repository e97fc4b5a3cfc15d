package inproc

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/rocketbitz/rankcomm-go/transport"
)

// Stream is a trivially ordered execution context: inproc collectives
// complete before the submitting call returns, so queries never pend.
type Stream struct{}

// Query always reports completion.
func (*Stream) Query() error { return nil }

var _ transport.Stream = (*Stream)(nil)

// Buffer is a host-memory buffer.
type Buffer struct {
	data []byte
}

var _ transport.Buffer = (*Buffer)(nil)

// Len returns the buffer length in bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes exposes the backing storage for direct reads and writes.
func (b *Buffer) Bytes() []byte { return b.data }

// Fill sets every byte of the buffer to value.
func (b *Buffer) Fill(value byte, _ transport.Stream) error {
	for i := range b.data {
		b.data[i] = value
	}
	return nil
}

// Slice returns a view sharing the backing storage.
func (b *Buffer) Slice(offset, length int) (transport.Buffer, error) {
	if offset < 0 || length < 0 || offset+length > len(b.data) {
		return nil, errors.Errorf("inproc: slice [%d:%d) out of buffer of %d bytes", offset, offset+length, len(b.data))
	}
	return &Buffer{data: b.data[offset : offset+length]}, nil
}

// hostBytes extracts the first size bytes of an inproc buffer.
func hostBytes(buf transport.Buffer, size int) ([]byte, error) {
	b, ok := buf.(*Buffer)
	if !ok {
		return nil, errors.Errorf("inproc: foreign buffer %T", buf)
	}
	if size < 0 || size > len(b.data) {
		return nil, errors.Errorf("inproc: %d bytes requested from buffer of %d", size, len(b.data))
	}
	return b.data[:size], nil
}

// Allocator provisions host buffers and counts live allocations so tests can
// assert release discipline.
type Allocator struct {
	live      atomic.Int64
	allocated atomic.Int64
}

var _ transport.Allocator = (*Allocator)(nil)

// NewAllocator returns an empty counting allocator.
func NewAllocator() *Allocator { return &Allocator{} }

// Allocate returns a zeroed host buffer of size bytes.
func (a *Allocator) Allocate(size int, _ transport.Stream) (transport.Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("inproc: allocation size must be positive, got %d", size)
	}
	a.live.Add(1)
	a.allocated.Add(1)
	return &Buffer{data: make([]byte, size)}, nil
}

// Deallocate releases a buffer previously handed out by Allocate. The size
// must match the allocation, mirroring sized device deallocation.
func (a *Allocator) Deallocate(buf transport.Buffer, size int, _ transport.Stream) error {
	b, ok := buf.(*Buffer)
	if !ok {
		return errors.Errorf("inproc: foreign buffer %T", buf)
	}
	if len(b.data) != size {
		return errors.Errorf("inproc: deallocation size %d does not match buffer of %d bytes", size, len(b.data))
	}
	b.data = nil
	a.live.Add(-1)
	return nil
}

// Live returns the number of outstanding allocations.
func (a *Allocator) Live() int64 { return a.live.Load() }

// Allocated returns the total number of allocations ever made.
func (a *Allocator) Allocated() int64 { return a.allocated.Load() }
