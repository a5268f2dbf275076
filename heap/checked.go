package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/memutils"
	"github.com/vkngwrapper/heapkit/memutils/block"
)

// canaryOffset is the offset of the debug margin that trails the payload of the allocated block
// at bp
func (a *Allocator) canaryOffset(bp int) int {
	return bp + a.arena.Size(bp) - block.Overhead - memutils.DebugMargin
}

// track records a block that has just been handed to the caller
func (a *Allocator) track(bp int, size int) {
	memutils.WriteMagicValue(a.arena.Bytes(), a.canaryOffset(bp))

	if a.live != nil {
		a.live.Put(Pointer(bp), size)
	}
}

func (a *Allocator) untrack(ptr Pointer) {
	if a.live != nil {
		a.live.Delete(ptr)
	}
}

// checkLive verifies ptr against the live allocation table. Without CreateCheckPointers
// every pointer is trusted.
func (a *Allocator) checkLive(ptr Pointer) error {
	if a.live == nil {
		return nil
	}

	_, ok := a.live.Get(ptr)
	if !ok {
		return errors.Wrapf(memutils.ErrInvalidPointer, "pointer %d", ptr)
	}

	return nil
}

// RequestedSize returns the size that was passed to Malloc or Realloc when the allocation at ptr
// was made. It is only available on allocators created with CreateCheckPointers.
func (a *Allocator) RequestedSize(ptr Pointer) (int, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.live == nil {
		return 0, errors.New("requested sizes are only tracked when the allocator is created with CreateCheckPointers")
	}

	size, ok := a.live.Get(ptr)
	if !ok {
		return 0, errors.Wrapf(memutils.ErrInvalidPointer, "pointer %d", ptr)
	}

	return size, nil
}
