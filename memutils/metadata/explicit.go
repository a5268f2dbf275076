package metadata

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/heapkit/memutils/block"
)

// ExplicitFreeList is a FreeIndex that threads a circular doubly-linked list through the payloads
// of free blocks. The first link word of a free payload holds the offset of its predecessor in the
// list, and the second holds its successor.
//
// The prologue block doubles as the list sentinel, so the list is never empty and Insert and
// Remove need no special cases. Newly freed blocks are inserted directly after the sentinel
// (LIFO), and fit queries only visit free blocks.
type ExplicitFreeList struct {
	freeIndexBase

	blocksFreeCount int
}

var _ FreeIndex = &ExplicitFreeList{}

// NewExplicitFreeList creates an ExplicitFreeList. Only FitFirst and FitBest are supported.
func NewExplicitFreeList(strategy FitStrategy) (*ExplicitFreeList, error) {
	if strategy != FitFirst && strategy != FitBest {
		return nil, errors.Errorf("the explicit free list does not support the %s strategy", strategy)
	}

	return &ExplicitFreeList{
		freeIndexBase: freeIndexBase{strategy: strategy},
	}, nil
}

// PrologueSize returns the size of a prologue large enough to hold the sentinel's link words
func (m *ExplicitFreeList) PrologueSize() int {
	return block.MinBlockSize
}

func (m *ExplicitFreeList) pred(bp int) int { return m.arena.GetOffset(bp) }
func (m *ExplicitFreeList) succ(bp int) int { return m.arena.GetOffset(bp + block.WordSize) }

func (m *ExplicitFreeList) setPred(bp int, pred int) { m.arena.PutOffset(bp, pred) }
func (m *ExplicitFreeList) setSucc(bp int, succ int) { m.arena.PutOffset(bp+block.WordSize, succ) }

func (m *ExplicitFreeList) Init(arena *block.Arena, root int) {
	m.freeIndexBase.Init(arena, root)
	m.blocksFreeCount = 0

	m.setPred(root, root)
	m.setSucc(root, root)
}

func (m *ExplicitFreeList) Insert(bp int) {
	if bp == m.root {
		panic("cannot insert the free list sentinel")
	}
	if m.arena.Allocated(bp) {
		panic(fmt.Sprintf("block at offset %d is not marked free", bp))
	}

	head := m.succ(m.root)
	m.setPred(bp, m.root)
	m.setSucc(bp, head)
	m.setPred(head, bp)
	m.setSucc(m.root, bp)

	m.blocksFreeCount++
}

func (m *ExplicitFreeList) Remove(bp int) {
	if bp == m.root {
		panic("cannot remove the free list sentinel")
	}
	if m.arena.Allocated(bp) {
		panic("provided block is not free")
	}

	pred := m.pred(bp)
	succ := m.succ(bp)
	m.setSucc(pred, succ)
	m.setPred(succ, pred)

	m.blocksFreeCount--
}

// Merged is a no-op: list membership does not depend on block size
func (m *ExplicitFreeList) Merged(bp int) {}

func (m *ExplicitFreeList) FindFit(size int) int {
	if m.strategy == FitBest {
		return m.findBestFit(size)
	}

	for bp := m.succ(m.root); bp != m.root; bp = m.succ(bp) {
		if m.arena.Size(bp) >= size {
			return bp
		}
	}

	return 0
}

func (m *ExplicitFreeList) findBestFit(size int) int {
	best := 0
	bestSize := 0

	for bp := m.succ(m.root); bp != m.root; bp = m.succ(bp) {
		blockSize := m.arena.Size(bp)
		if blockSize < size {
			continue
		}
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

func (m *ExplicitFreeList) FreeBlockCount() int {
	return m.blocksFreeCount
}

func (m *ExplicitFreeList) VisitFreeBlocks(visit func(bp int, size int) error) error {
	for bp := m.succ(m.root); bp != m.root; bp = m.succ(bp) {
		err := visit(bp, m.arena.Size(bp))
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *ExplicitFreeList) Validate() error {
	if m.arena == nil {
		return errors.New("the free list has not been initialized")
	}

	heapEnd := m.arena.Len()
	maxBlocks := heapEnd / block.MinBlockSize
	if m.pred(m.succ(m.root)) != m.root {
		return errors.New("the sentinel's successor does not link back to the sentinel")
	}

	var listCount int
	prev := m.root
	for bp := m.succ(m.root); bp != m.root; bp = m.succ(bp) {
		listCount++
		if listCount > maxBlocks {
			return errors.Errorf("the free list holds more than the %d blocks the heap can contain, it likely has a cycle", maxBlocks)
		}

		if bp <= m.root || bp >= heapEnd {
			return errors.Errorf("block at offset %d is in the free list but lies outside the heap", bp)
		}
		if bp%block.Alignment != 0 {
			return errors.Errorf("block at offset %d is in the free list but is not aligned", bp)
		}
		if m.arena.Allocated(bp) {
			return errors.Errorf("block at offset %d is in the free list but is not free", bp)
		}
		if m.pred(bp) != prev {
			return errors.Errorf("block at offset %d lists the block at offset %d as its next block, but the reverse reference is broken", prev, bp)
		}

		prev = bp
	}

	if m.pred(m.root) != prev {
		return errors.Errorf("the sentinel's predecessor is %d, but the last block in the list is %d", m.pred(m.root), prev)
	}

	if listCount != m.blocksFreeCount {
		return errors.Errorf("the free block count of the list is %d, but there were %d blocks in the list", m.blocksFreeCount, listCount)
	}

	return nil
}
