package metadata

import (
	"github.com/vkngwrapper/heapkit/memutils/block"
)

// FreeIndex tracks which blocks of a heap are free and answers fit queries. Implementations keep
// all of their state either inside the heap itself or in a handful of scalar fields; none of them
// allocate side tables.
//
// The heap engine owns block headers. A FreeIndex is told about state transitions through Insert,
// Remove, and Merged, and must never rewrite a header or footer itself.
type FreeIndex interface {
	// PrologueSize is the block size of the prologue sentinel this index needs laid down at the
	// start of the heap. The explicit index stores its list anchor in the prologue payload.
	PrologueSize() int
	// Strategy returns the fit strategy this index was created with
	Strategy() FitStrategy
	// Init must be called after the prologue and epilogue are written and before any other
	// method. root is the payload offset of the prologue.
	Init(arena *block.Arena, root int)

	// Insert records that the block at bp has become free. Its header and footer must already
	// be marked free.
	Insert(bp int)
	// Remove records that the block at bp is leaving the free set, either because it is about
	// to be allocated or because it is about to be merged into a neighbor. Its header must still
	// be marked free. Removing a block twice corrupts the index.
	Remove(bp int)
	// Merged records that the block at bp has just grown to cover one or more blocks that
	// followed it. Its header must already hold the new size.
	Merged(bp int)
	// FindFit returns the payload offset of a free block of at least size bytes, or 0 if none
	// exists. size is a full block size including overhead.
	FindFit(size int) int

	// FreeBlockCount returns the number of free blocks currently tracked
	FreeBlockCount() int
	// VisitFreeBlocks calls the provided callback once for each free block, in the index's scan
	// order
	VisitFreeBlocks(visit func(bp int, size int) error) error
	// Validate performs internal consistency checks on the index. When the implementation is
	// functioning correctly it should not be possible for this method to return an error.
	Validate() error
}

// freeIndexBase provides the fields shared by FreeIndex implementations
type freeIndexBase struct {
	arena    *block.Arena
	root     int
	strategy FitStrategy
}

func (m *freeIndexBase) Init(arena *block.Arena, root int) {
	m.arena = arena
	m.root = root
}

// Strategy returns the fit strategy this index was created with
func (m *freeIndexBase) Strategy() FitStrategy { return m.strategy }

// firstBlock returns the payload offset of the first block after the prologue
func (m *freeIndexBase) firstBlock() int {
	return m.arena.Next(m.root)
}

// fits returns true if the block at bp is free and holds at least size bytes
func (m *freeIndexBase) fits(bp int, size int) bool {
	w := m.arena.Get(block.Header(bp))
	return !w.Allocated() && w.Size() >= size
}
