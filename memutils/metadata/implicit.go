package metadata

import (
	"github.com/pkg/errors"
	"github.com/vkngwrapper/heapkit/memutils/block"
)

// ImplicitFreeList is a FreeIndex with no index at all: free blocks are found by walking every
// block in the heap via the size stored in each header, from the first block after the prologue up
// to the epilogue. Insert and Remove do no work.
//
// For FitNext, the index owns a scan cursor that persists between queries. The cursor always
// addresses the start of a block: whenever a block grows over the block the cursor addresses,
// Merged pulls the cursor back to the start of the grown block.
type ImplicitFreeList struct {
	freeIndexBase

	cursor int
}

var _ FreeIndex = &ImplicitFreeList{}

// NewImplicitFreeList creates an ImplicitFreeList. All strategies are supported.
func NewImplicitFreeList(strategy FitStrategy) (*ImplicitFreeList, error) {
	if _, ok := fitStrategyMapping[strategy]; !ok {
		return nil, errors.Errorf("unknown fit strategy %d", strategy)
	}

	return &ImplicitFreeList{
		freeIndexBase: freeIndexBase{strategy: strategy},
	}, nil
}

// PrologueSize returns the size of a prologue holding only a header and footer
func (m *ImplicitFreeList) PrologueSize() int {
	return block.DoubleWordSize
}

func (m *ImplicitFreeList) Init(arena *block.Arena, root int) {
	m.freeIndexBase.Init(arena, root)
	m.cursor = 0
}

func (m *ImplicitFreeList) Insert(bp int) {}

func (m *ImplicitFreeList) Remove(bp int) {}

func (m *ImplicitFreeList) Merged(bp int) {
	if m.cursor > bp && m.cursor < m.arena.Next(bp) {
		m.cursor = bp
	}
}

// Cursor returns the block offset the next FitNext scan will start from
func (m *ImplicitFreeList) Cursor() int {
	if m.cursor == 0 {
		return m.firstBlock()
	}
	return m.cursor
}

func (m *ImplicitFreeList) FindFit(size int) int {
	switch m.strategy {
	case FitNext:
		return m.findNextFit(size)
	case FitBest:
		return m.findBestFit(size)
	case FitWorst:
		return m.findWorstFit(size)
	}

	for bp := m.firstBlock(); !m.arena.IsEpilogue(bp); bp = m.arena.Next(bp) {
		if m.fits(bp, size) {
			return bp
		}
	}

	return 0
}

func (m *ImplicitFreeList) findNextFit(size int) int {
	first := m.firstBlock()
	start := m.cursor
	if start < first {
		start = first
	}

	// Scan from the cursor to the end of the heap, then wrap around to the cursor
	bp := start
	for ; !m.arena.IsEpilogue(bp); bp = m.arena.Next(bp) {
		if m.fits(bp, size) {
			m.cursor = bp
			return bp
		}
	}

	for bp = first; bp < start; bp = m.arena.Next(bp) {
		if m.fits(bp, size) {
			m.cursor = bp
			return bp
		}
	}

	return 0
}

func (m *ImplicitFreeList) findBestFit(size int) int {
	best := 0
	bestSize := 0

	for bp := m.firstBlock(); !m.arena.IsEpilogue(bp); bp = m.arena.Next(bp) {
		if !m.fits(bp, size) {
			continue
		}

		blockSize := m.arena.Size(bp)
		if blockSize == size {
			return bp
		}
		if best == 0 || blockSize < bestSize {
			best = bp
			bestSize = blockSize
		}
	}

	return best
}

func (m *ImplicitFreeList) findWorstFit(size int) int {
	worst := 0
	worstSize := 0

	for bp := m.firstBlock(); !m.arena.IsEpilogue(bp); bp = m.arena.Next(bp) {
		if !m.fits(bp, size) {
			continue
		}

		blockSize := m.arena.Size(bp)
		if blockSize > worstSize {
			worst = bp
			worstSize = blockSize
		}
	}

	return worst
}

func (m *ImplicitFreeList) FreeBlockCount() int {
	var count int
	for bp := m.firstBlock(); !m.arena.IsEpilogue(bp); bp = m.arena.Next(bp) {
		if !m.arena.Allocated(bp) {
			count++
		}
	}

	return count
}

func (m *ImplicitFreeList) VisitFreeBlocks(visit func(bp int, size int) error) error {
	for bp := m.firstBlock(); !m.arena.IsEpilogue(bp); bp = m.arena.Next(bp) {
		if m.arena.Allocated(bp) {
			continue
		}

		err := visit(bp, m.arena.Size(bp))
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *ImplicitFreeList) Validate() error {
	if m.arena == nil {
		return errors.New("the implicit free list has not been initialized")
	}

	if m.cursor == 0 {
		return nil
	}

	for bp := m.firstBlock(); ; bp = m.arena.Next(bp) {
		if bp == m.cursor {
			return nil
		}
		if bp > m.cursor {
			return errors.Errorf("the next-fit cursor at offset %d points inside the block at offset %d", m.cursor, m.arena.Prev(bp))
		}
		if m.arena.IsEpilogue(bp) {
			return errors.Errorf("the next-fit cursor at offset %d lies past the end of the heap", m.cursor)
		}
	}
}
