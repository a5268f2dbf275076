package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/memutils"
	"github.com/vkngwrapper/heapkit/memutils/block"
)

// Validate walks the entire heap and performs consistency checks: every block is aligned, sized
// correctly, and has matching header and footer words, no two free blocks are adjacent, the
// epilogue sits exactly at the end of the heap, and the free index agrees with the blocks it
// indexes. When the allocator is functioning correctly and has not been handed invalid pointers,
// it should not be possible for this method to return an error.
func (a *Allocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.validate()
}

func (a *Allocator) validate() error {
	heapSize := a.arena.Len()
	if heapSize < a.root+a.index.PrologueSize() {
		return errors.New("heap has not been initialized")
	}
	if heapSize != len(a.supplier.Memory()) {
		return errors.Newf("heap view holds %d bytes but the supplier holds %d", heapSize, len(a.supplier.Memory()))
	}
	if heapSize%block.Alignment != 0 {
		return errors.Newf("heap size %d is not a multiple of %d", heapSize, block.Alignment)
	}

	prologue := block.Pack(a.index.PrologueSize(), true)
	if a.arena.Get(block.Header(a.root)) != prologue || a.arena.Get(a.arena.Footer(a.root)) != prologue {
		return errors.New("prologue header or footer has been overwritten")
	}

	var freeCount, allocCount int
	prevFree := false
	bp := a.arena.Next(a.root)
	for ; bp < heapSize && !a.arena.IsEpilogue(bp); bp = a.arena.Next(bp) {
		if bp%block.Alignment != 0 {
			return errors.Newf("block %d is not aligned to %d", bp, block.Alignment)
		}

		size := a.arena.Size(bp)
		if size < block.MinBlockSize {
			return errors.Newf("block %d has size %d, below the minimum of %d", bp, size, block.MinBlockSize)
		}
		if bp+size > heapSize {
			return errors.Newf("block %d with size %d runs past the end of the heap at %d", bp, size, heapSize)
		}
		if a.arena.Get(block.Header(bp)) != a.arena.Get(a.arena.Footer(bp)) {
			return errors.Newf("block %d header and footer do not match", bp)
		}

		free := !a.arena.Allocated(bp)
		if free {
			if prevFree {
				return errors.Newf("block %d is free and follows another free block", bp)
			}
			freeCount++
		} else {
			allocCount++
			if a.live != nil {
				if _, ok := a.live.Get(Pointer(bp)); !ok {
					return errors.Newf("allocated block %d is missing from the live allocation table", bp)
				}
			}
		}
		prevFree = free
	}

	if bp != heapSize {
		return errors.Newf("epilogue found at %d but the heap ends at %d", bp, heapSize)
	}

	if freeCount != a.index.FreeBlockCount() {
		return errors.Newf("heap holds %d free blocks but the free index tracks %d", freeCount, a.index.FreeBlockCount())
	}

	if a.live != nil && a.live.Count() != allocCount {
		return errors.Newf("heap holds %d allocated blocks but %d allocations are live", allocCount, a.live.Count())
	}

	err := a.index.VisitFreeBlocks(func(bp int, size int) error {
		if a.arena.Allocated(bp) {
			return errors.Newf("free index holds allocated block %d", bp)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return a.index.Validate()
}

// VisitAllBlocks calls the provided callback once for every block between the prologue and the
// epilogue, in address order. The callback receives the block's payload offset, its full size
// including overhead, and whether it is free. Iteration stops at the first error, which is returned.
func (a *Allocator) VisitAllBlocks(visit func(ptr Pointer, size int, free bool) error) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.visitAllBlocks(visit)
}

func (a *Allocator) visitAllBlocks(visit func(ptr Pointer, size int, free bool) error) error {
	for bp := a.arena.Next(a.root); !a.arena.IsEpilogue(bp); bp = a.arena.Next(bp) {
		err := visit(Pointer(bp), a.arena.Size(bp), !a.arena.Allocated(bp))
		if err != nil {
			return err
		}
	}

	return nil
}

// CheckCorruption verifies the magic values written after every allocation's payload. It returns
// an error identifying the first allocation whose trailing bytes were overwritten. Outside of the
// debug_mem_utils build tag no magic values are written and this always succeeds.
func (a *Allocator) CheckCorruption() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if memutils.DebugMargin == 0 {
		return nil
	}

	mem := a.arena.Bytes()
	return a.visitAllBlocks(func(ptr Pointer, size int, free bool) error {
		if free {
			return nil
		}

		if !memutils.ValidateMagicValue(mem, a.canaryOffset(int(ptr))) {
			return errors.Newf("memory corruption detected after the allocation at %d", ptr)
		}

		return nil
	})
}
