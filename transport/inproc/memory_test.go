package inproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorCountsLiveBuffers(t *testing.T) {
	alloc := NewAllocator()
	stream := &Stream{}

	first, err := alloc.Allocate(16, stream)
	require.NoError(t, err)
	second, err := alloc.Allocate(32, stream)
	require.NoError(t, err)

	assert.Equal(t, int64(2), alloc.Live())
	assert.Equal(t, int64(2), alloc.Allocated())

	require.NoError(t, alloc.Deallocate(first, 16, stream))
	require.NoError(t, alloc.Deallocate(second, 32, stream))
	assert.Equal(t, int64(0), alloc.Live())
	assert.Equal(t, int64(2), alloc.Allocated())
}

func TestAllocatorRejectsBadRequests(t *testing.T) {
	alloc := NewAllocator()
	stream := &Stream{}

	_, err := alloc.Allocate(0, stream)
	assert.Error(t, err)
	_, err = alloc.Allocate(-4, stream)
	assert.Error(t, err)

	buf, err := alloc.Allocate(16, stream)
	require.NoError(t, err)
	assert.Error(t, alloc.Deallocate(buf, 8, stream), "sized deallocation must match")
}

func TestBufferFillAndSlice(t *testing.T) {
	alloc := NewAllocator()
	buf, err := alloc.Allocate(8, &Stream{})
	require.NoError(t, err)
	b := buf.(*Buffer)

	require.NoError(t, b.Fill(0xAB, &Stream{}))
	for _, got := range b.Bytes() {
		assert.Equal(t, byte(0xAB), got)
	}

	view, err := b.Slice(2, 4)
	require.NoError(t, err)
	require.NoError(t, view.Fill(0x01, &Stream{}))
	assert.Equal(t, []byte{0xAB, 0xAB, 1, 1, 1, 1, 0xAB, 0xAB}, b.Bytes(), "slice must alias the parent storage")

	_, err = b.Slice(6, 4)
	assert.Error(t, err)
	_, err = b.Slice(-1, 2)
	assert.Error(t, err)
}
