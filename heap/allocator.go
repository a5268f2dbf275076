// Package heap is a boundary-tag heap allocator over a contiguous, growable region of bytes. It
// hands out payload offsets (Pointer values) rather than Go pointers, so the heap can live in a
// plain byte slice, an anonymous memory mapping, or any other Supplier.
package heap

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/heapkit/heap/internal/utils"
	"github.com/vkngwrapper/heapkit/memutils"
	"github.com/vkngwrapper/heapkit/memutils/block"
	"github.com/vkngwrapper/heapkit/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Pointer is the offset of an allocation's payload from the start of the heap. Every Pointer
// returned by an Allocator is a multiple of 8.
type Pointer uint32

// NilPointer is never a valid allocation. Offset 0 is occupied by the heap's alignment padding.
const NilPointer Pointer = 0

// maxRequestSize is the largest payload that could ever fit in a heap addressed by 32-bit offsets
const maxRequestSize = math.MaxUint32 - block.MinBlockSize

// Allocator manages a single heap inside the memory provided by a Supplier. Unless it was created
// with CreateExternallySynchronized, all of its methods are safe to call from multiple goroutines.
type Allocator struct {
	mutex    utils.OptionalMutex
	logger   *slog.Logger
	supplier Supplier

	createFlags CreateFlags
	indexKind   IndexKind
	chunkSize   int

	arena *block.Arena
	index metadata.FreeIndex
	root  int

	live     *swiss.Map[Pointer, int]
	counters Counters
}

// unlockedAllocator exposes validation to memutils.DebugValidate from inside a method that
// already holds the allocator mutex
type unlockedAllocator struct {
	allocator *Allocator
}

func (a unlockedAllocator) Validate() error {
	return a.allocator.validate()
}

// Malloc allocates a block with a payload of at least size bytes and returns its offset. A size of
// 0 returns NilPointer without touching the heap. When no free block is large enough the heap is
// extended; if the supplier cannot provide the memory, Malloc returns NilPointer and an error
// wrapping memutils.ErrSupplierExhausted, and the heap is left as it was.
func (a *Allocator) Malloc(size int) (Pointer, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.logger.Debug("Allocator::Malloc", slog.Int("Size", size))
	a.counters.MallocCalls++

	ptr, err := a.malloc(size)
	memutils.DebugValidate(unlockedAllocator{a})
	return ptr, err
}

// Free returns the allocation at ptr to the heap, merging it with any free neighbors. Freeing
// NilPointer does nothing.
//
// Passing a pointer that is not a live allocation corrupts the heap, unless the allocator was
// created with CreateCheckPointers, in which case Free returns memutils.ErrInvalidPointer and
// changes nothing.
func (a *Allocator) Free(ptr Pointer) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.logger.Debug("Allocator::Free", slog.Int("Pointer", int(ptr)))
	a.counters.FreeCalls++

	err := a.free(ptr)
	memutils.DebugValidate(unlockedAllocator{a})
	return err
}

// Bytes returns the payload of the allocation at ptr. The slice is only valid until the next call
// to Malloc, Realloc, or Init, any of which may move the heap's backing memory.
func (a *Allocator) Bytes(ptr Pointer) ([]byte, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if ptr == NilPointer {
		return nil, nil
	}

	err := a.checkLive(ptr)
	if err != nil {
		return nil, err
	}

	bp := int(ptr)
	return a.arena.Payload(bp)[:a.payloadSize(bp)], nil
}

// PayloadSize returns the number of usable bytes in the allocation at ptr. It may be larger than
// the size originally requested.
func (a *Allocator) PayloadSize(ptr Pointer) (int, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if ptr == NilPointer {
		return 0, nil
	}

	err := a.checkLive(ptr)
	if err != nil {
		return 0, err
	}

	return a.payloadSize(int(ptr)), nil
}

// HeapSize returns the number of bytes the heap currently occupies in its supplier
func (a *Allocator) HeapSize() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.arena.Len()
}

func (a *Allocator) payloadSize(bp int) int {
	return a.arena.Size(bp) - block.Overhead - memutils.DebugMargin
}

func (a *Allocator) malloc(size int) (Pointer, error) {
	if size == 0 {
		return NilPointer, nil
	}
	if size < 0 {
		return NilPointer, errors.Newf("invalid allocation size: %d", size)
	}
	if uint64(size) > maxRequestSize {
		return NilPointer, errors.Wrapf(memutils.ErrSupplierExhausted, "allocation of %d bytes can never fit in the heap", size)
	}

	asize := block.AdjustedSize(size + memutils.DebugMargin)

	bp := a.index.FindFit(asize)
	if bp == 0 {
		var err error
		bp, err = a.extendHeap(memutils.Max(asize, a.chunkSize))
		if err != nil {
			return NilPointer, err
		}
	}

	a.place(bp, asize)
	a.track(bp, size)
	return Pointer(bp), nil
}

func (a *Allocator) free(ptr Pointer) error {
	if ptr == NilPointer {
		return nil
	}

	err := a.checkLive(ptr)
	if err != nil {
		return err
	}
	a.untrack(ptr)

	bp := int(ptr)
	a.arena.SetBlock(bp, a.arena.Size(bp), false)
	a.coalesce(bp)
	return nil
}

// place marks asize bytes at the start of the free block bp allocated, splitting the remainder
// off as a new free block when it is large enough to stand alone
func (a *Allocator) place(bp int, asize int) {
	csize := a.arena.Size(bp)
	a.index.Remove(bp)

	if csize-asize < block.MinBlockSize {
		a.arena.SetBlock(bp, csize, true)
		return
	}

	a.arena.SetBlock(bp, asize, true)
	remainder := a.arena.Next(bp)
	a.arena.SetBlock(remainder, csize-asize, false)
	a.index.Insert(remainder)
	a.counters.Splits++
}

// extendHeap grows the heap by size bytes, rounded up to keep the heap 8-byte aligned. The old
// epilogue header becomes the header of a new free block, which is coalesced with the previous
// last block if that block was free.
func (a *Allocator) extendHeap(size int) (int, error) {
	size = memutils.AlignUp(size, block.Alignment)

	oldBreak, err := a.supplier.Extend(size)
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "failed to extend heap",
			slog.Int("Size", size),
			slog.Int("HeapSize", a.arena.Len()),
			slog.Any("error", err))
		return 0, errors.Wrapf(errors.Mark(err, memutils.ErrSupplierExhausted), "failed to extend heap by %d bytes", size)
	}

	a.arena.Reset(a.supplier.Memory())
	a.counters.Extensions++
	a.counters.ExtendedBytes += size

	bp := oldBreak
	a.arena.SetBlock(bp, size, false)
	a.arena.SetEpilogue(a.arena.Next(bp))

	return a.coalesce(bp), nil
}

// Counters returns the running operation counts since the heap was last initialized
func (a *Allocator) Counters() Counters {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.counters
}
