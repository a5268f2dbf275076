// Package block is the boundary-tag codec for heaps managed by heapkit. It is the only code that
// performs offset arithmetic on heap bytes: every other component reads and writes blocks through
// the accessors on Arena.
//
// A block is addressed by the offset of its payload (bp). Its header word sits immediately before
// the payload, and its footer word is the last word of the block:
//
//	bp-4        bp                     bp+size-8   bp+size-4
//	| header  | payload ...           | footer   | next header
//
// Header and footer both hold the block size (a multiple of Alignment, including the header and
// footer) with the allocated flag packed into the low bit.
//
// None of these methods validate their input. Passing an offset that does not address a block
// produces garbage or panics on slice bounds.
package block

import (
	"encoding/binary"

	"github.com/vkngwrapper/heapkit/memutils"
)

const (
	// WordSize is the size in bytes of a header, footer, or free-list link word
	WordSize = 4
	// DoubleWordSize is the size in bytes of a header and footer pair
	DoubleWordSize = 2 * WordSize
	// Alignment is the payload alignment guaranteed for every allocation
	Alignment = 8
	// Overhead is the number of bytes each block spends on its header and footer
	Overhead = DoubleWordSize
	// MinBlockSize is the smallest block that can exist: header, footer, and room for the
	// pair of free-list link words
	MinBlockSize = 2 * Alignment

	flagMask = Alignment - 1
)

// Word is a packed header or footer: block size in the high bits and the allocated flag in bit 0
type Word uint32

// Pack combines a block size and allocated flag into a header/footer word
func Pack(size int, allocated bool) Word {
	w := Word(size)
	if allocated {
		w |= 1
	}
	return w
}

// Size returns the block size stored in the word
func (w Word) Size() int { return int(w &^ flagMask) }

// Allocated returns the allocated flag stored in the word
func (w Word) Allocated() bool { return w&1 != 0 }

// Unpack splits a header/footer word into its size and allocated flag
func Unpack(w Word) (int, bool) {
	return w.Size(), w.Allocated()
}

// Header returns the offset of the header word for the block with payload offset bp
func Header(bp int) int { return bp - WordSize }

// AdjustedSize returns the full block size needed to hold a payload of the requested size
func AdjustedSize(request int) int {
	size := memutils.AlignUp(request, Alignment) + Overhead
	if size < MinBlockSize {
		return MinBlockSize
	}
	return size
}

// Arena provides word-level access to the bytes of a heap. The backing slice is owned by the heap
// supplier; Reset must be called whenever the supplier hands out a new view of the heap.
type Arena struct {
	mem []byte
}

// NewArena creates an arena over the provided heap memory
func NewArena(mem []byte) *Arena {
	return &Arena{mem: mem}
}

// Reset points the arena at a new view of heap memory
func (a *Arena) Reset(mem []byte) {
	a.mem = mem
}

// Len returns the current size of the heap in bytes
func (a *Arena) Len() int { return len(a.mem) }

// Bytes returns the raw heap memory
func (a *Arena) Bytes() []byte { return a.mem }

// Get reads the header or footer word at addr
func (a *Arena) Get(addr int) Word {
	return Word(binary.LittleEndian.Uint32(a.mem[addr:]))
}

// Put writes a header or footer word at addr
func (a *Arena) Put(addr int, w Word) {
	binary.LittleEndian.PutUint32(a.mem[addr:], uint32(w))
}

// GetOffset reads a link word holding a block offset
func (a *Arena) GetOffset(addr int) int {
	return int(binary.LittleEndian.Uint32(a.mem[addr:]))
}

// PutOffset writes a link word holding a block offset
func (a *Arena) PutOffset(addr int, offset int) {
	binary.LittleEndian.PutUint32(a.mem[addr:], uint32(offset))
}

// Size returns the size of the block at bp, read from its header
func (a *Arena) Size(bp int) int {
	return a.Get(Header(bp)).Size()
}

// Allocated returns the allocated flag of the block at bp, read from its header
func (a *Arena) Allocated(bp int) bool {
	return a.Get(Header(bp)).Allocated()
}

// Footer returns the offset of the footer word of the block at bp. The block's header must already
// hold its size.
func (a *Arena) Footer(bp int) int {
	return bp + a.Size(bp) - DoubleWordSize
}

// Next returns the payload offset of the block physically following bp
func (a *Arena) Next(bp int) int {
	return bp + a.Size(bp)
}

// Prev returns the payload offset of the block physically preceding bp, located through that
// block's footer
func (a *Arena) Prev(bp int) int {
	return bp - a.Get(bp-DoubleWordSize).Size()
}

// PrevAllocated reads the allocated flag of the preceding block from its footer
func (a *Arena) PrevAllocated(bp int) bool {
	return a.Get(bp - DoubleWordSize).Allocated()
}

// SetBlock writes matching header and footer words for the block at bp
func (a *Arena) SetBlock(bp int, size int, allocated bool) {
	w := Pack(size, allocated)
	a.Put(Header(bp), w)
	a.Put(bp+size-DoubleWordSize, w)
}

// SetEpilogue writes the zero-size allocated header that terminates the heap. bp is the payload
// offset the epilogue would have, which is the current end of the heap.
func (a *Arena) SetEpilogue(bp int) {
	a.Put(Header(bp), Pack(0, true))
}

// IsEpilogue returns true if bp addresses the epilogue header
func (a *Arena) IsEpilogue(bp int) bool {
	return a.Get(Header(bp)) == Pack(0, true)
}

// Payload returns the payload bytes of the block at bp: everything between its header and footer
func (a *Arena) Payload(bp int) []byte {
	end := bp + a.Size(bp) - Overhead
	return a.mem[bp:end:end]
}
