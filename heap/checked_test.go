package heap_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/memutils"
)

func TestCheckedDoubleFree(t *testing.T) {
	allocator := readyAllocator(t, 0, heap.CreateOptions{Flags: heap.CreateCheckPointers})
	ptr := mustMalloc(t, allocator, 10)
	mustMalloc(t, allocator, 10)
	mustFree(t, allocator, ptr)

	before := heapBlocks(t, allocator)
	err := allocator.Free(ptr)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrInvalidPointer))
	require.Equal(t, before, heapBlocks(t, allocator))
	require.NoError(t, allocator.Validate())
}

func TestCheckedForeignPointer(t *testing.T) {
	allocator := readyAllocator(t, 0, heap.CreateOptions{Flags: heap.CreateCheckPointers})
	ptr := mustMalloc(t, allocator, 10)
	before := heapBlocks(t, allocator)

	err := allocator.Free(ptr + 8)
	require.True(t, errors.Is(err, memutils.ErrInvalidPointer))

	newPtr, err := allocator.Realloc(ptr+8, 100)
	require.True(t, errors.Is(err, memutils.ErrInvalidPointer))
	require.Equal(t, heap.NilPointer, newPtr)

	_, err = allocator.Bytes(ptr + 8)
	require.True(t, errors.Is(err, memutils.ErrInvalidPointer))

	_, err = allocator.PayloadSize(ptr + 8)
	require.True(t, errors.Is(err, memutils.ErrInvalidPointer))

	require.Equal(t, before, heapBlocks(t, allocator))
	require.NoError(t, allocator.Validate())
}

func TestCheckedRequestedSize(t *testing.T) {
	allocator := readyAllocator(t, 0, heap.CreateOptions{Flags: heap.CreateCheckPointers})
	ptr := mustMalloc(t, allocator, 10)

	size, err := allocator.RequestedSize(ptr)
	require.NoError(t, err)
	require.Equal(t, 10, size)

	ptr, err = allocator.Realloc(ptr, 300)
	require.NoError(t, err)
	size, err = allocator.RequestedSize(ptr)
	require.NoError(t, err)
	require.Equal(t, 300, size)

	mustFree(t, allocator, ptr)
	_, err = allocator.RequestedSize(ptr)
	require.True(t, errors.Is(err, memutils.ErrInvalidPointer))

	require.NoError(t, allocator.Init())
	require.NoError(t, allocator.Validate())
}

func TestUncheckedRequestedSize(t *testing.T) {
	allocator := readyAllocator(t, 0, heap.CreateOptions{})
	ptr := mustMalloc(t, allocator, 10)

	_, err := allocator.RequestedSize(ptr)
	require.Error(t, err)
}
