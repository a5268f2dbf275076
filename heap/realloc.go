package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/memutils"
	"github.com/vkngwrapper/heapkit/memutils/block"
	"golang.org/x/exp/slog"
)

// Realloc resizes the allocation at ptr so that it has a payload of at least size bytes, and
// returns the allocation's new offset. The contents of the payload are preserved up to the smaller
// of the old and new sizes.
//
// Realloc(NilPointer, size) behaves like Malloc(size), and Realloc(ptr, 0) behaves like Free(ptr)
// and returns NilPointer. Shrinking, and growing into a free block that directly follows the
// allocation, happen in place. Otherwise a new block is allocated, the payload is copied, and the
// old block is freed. If that new allocation fails, Realloc returns NilPointer and an error, and
// the original allocation is left untouched and still owned by the caller.
func (a *Allocator) Realloc(ptr Pointer, size int) (Pointer, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.logger.Debug("Allocator::Realloc", slog.Int("Pointer", int(ptr)), slog.Int("Size", size))
	a.counters.ReallocCalls++

	newPtr, err := a.realloc(ptr, size)
	memutils.DebugValidate(unlockedAllocator{a})
	return newPtr, err
}

func (a *Allocator) realloc(ptr Pointer, size int) (Pointer, error) {
	if ptr == NilPointer {
		return a.malloc(size)
	}
	if size == 0 {
		return NilPointer, a.free(ptr)
	}

	err := a.checkLive(ptr)
	if err != nil {
		return NilPointer, err
	}
	if size < 0 {
		return NilPointer, errors.Newf("invalid allocation size: %d", size)
	}
	if uint64(size) > maxRequestSize {
		return NilPointer, errors.Wrapf(memutils.ErrSupplierExhausted, "allocation of %d bytes can never fit in the heap", size)
	}

	bp := int(ptr)
	asize := block.AdjustedSize(size + memutils.DebugMargin)
	oldSize := a.arena.Size(bp)

	if asize <= oldSize {
		a.shrink(bp, asize)
		a.track(bp, size)
		a.counters.InPlaceReallocs++
		return ptr, nil
	}

	next := a.arena.Next(bp)
	if !a.arena.Allocated(next) && oldSize+a.arena.Size(next) >= asize {
		a.index.Remove(next)
		a.arena.SetBlock(bp, oldSize+a.arena.Size(next), true)
		a.index.Merged(bp)
		a.shrink(bp, asize)
		a.track(bp, size)
		a.counters.InPlaceReallocs++
		return ptr, nil
	}

	oldPayloadSize := a.payloadSize(bp)
	newPtr, err := a.malloc(size)
	if err != nil {
		return NilPointer, err
	}

	// malloc may have extended the heap, so the arena view is only fetched now
	copy(a.arena.Payload(int(newPtr)), a.arena.Payload(bp)[:memutils.Min(oldPayloadSize, size)])

	err = a.free(ptr)
	if err != nil {
		return NilPointer, err
	}

	a.counters.Relocations++
	return newPtr, nil
}

// shrink trims the allocated block at bp down to asize bytes when the trimmed tail is large
// enough to become a free block of its own. The tail is coalesced with whatever follows it.
func (a *Allocator) shrink(bp int, asize int) {
	csize := a.arena.Size(bp)
	if csize-asize < block.MinBlockSize {
		return
	}

	a.arena.SetBlock(bp, asize, true)
	tail := a.arena.Next(bp)
	a.arena.SetBlock(tail, csize-asize, false)
	a.counters.Splits++
	a.coalesce(tail)
}
