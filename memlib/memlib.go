// Package memlib provides raw heap suppliers: fixed-capacity memory regions with an sbrk-style
// break that can only move upward. They play the role of the operating system for heapkit
// allocators, and report exhaustion instead of growing past their capacity.
package memlib

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/memutils"
)

const (
	// DefaultMaxHeap is the capacity used when a supplier is created with a capacity of 0. It is
	// equal to 20Mb.
	DefaultMaxHeap int = 20 * (1 << 20)
)

// ErrOutOfMemory is returned by Extend when the region cannot satisfy a request. It wraps
// memutils.ErrSupplierExhausted.
var ErrOutOfMemory = errors.Wrap(memutils.ErrSupplierExhausted, "memlib: ran out of memory")

// Region is a heap supplier backed by an ordinary byte slice allocated up front. Memory below the
// break is handed to the allocator; memory above it is reserved for later extensions.
//
// Region is not safe for concurrent use.
type Region struct {
	mem []byte
	brk int
}

// NewRegion creates a Region able to hold maxHeap bytes. A maxHeap of 0 selects DefaultMaxHeap.
func NewRegion(maxHeap int) (*Region, error) {
	maxHeap, err := checkMaxHeap(maxHeap)
	if err != nil {
		return nil, err
	}

	return &Region{mem: make([]byte, maxHeap)}, nil
}

func checkMaxHeap(maxHeap int) (int, error) {
	if maxHeap == 0 {
		return DefaultMaxHeap, nil
	}

	if maxHeap < 0 || uint64(maxHeap) > math.MaxUint32 {
		return 0, errors.Newf("memlib: max heap must be between 1 and %d bytes, but was %d", uint64(math.MaxUint32), maxHeap)
	}

	return maxHeap, nil
}

// Extend moves the break up by delta bytes and returns the old break, which is the offset of the
// first new byte. The region is left unchanged when it fails.
func (r *Region) Extend(delta int) (int, error) {
	if delta < 0 {
		return -1, errors.Wrapf(ErrOutOfMemory, "memlib: cannot shrink the heap (delta %d)", delta)
	}

	if delta > len(r.mem)-r.brk {
		return -1, errors.Wrapf(ErrOutOfMemory, "memlib: could not extend a %d byte heap by %d bytes (max heap %d)", r.brk, delta, len(r.mem))
	}

	oldBrk := r.brk
	r.brk += delta
	return oldBrk, nil
}

// Memory returns the bytes of the region below the break
func (r *Region) Memory() []byte {
	return r.mem[:r.brk:r.brk]
}

// Reset moves the break back to the start of the region, discarding the heap
func (r *Region) Reset() {
	r.brk = 0
}

// Brk returns the current size of the heap in bytes
func (r *Region) Brk() int { return r.brk }

// MaxHeap returns the capacity of the region in bytes
func (r *Region) MaxHeap() int { return len(r.mem) }
