package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/heapkit/memutils"
	"github.com/vkngwrapper/heapkit/memutils/block"
	"golang.org/x/exp/slog"
)

// Init discards every allocation and rebuilds an empty heap at the bottom of the supplier: a pad
// word, the prologue block, and the epilogue header, followed by a first free block of one chunk.
// Every Pointer handed out before Init is invalidated.
func (a *Allocator) Init() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.logger.Debug("Allocator::Init")
	err := a.init()
	if err != nil {
		return err
	}

	memutils.DebugValidate(unlockedAllocator{a})
	return nil
}

func (a *Allocator) init() error {
	a.supplier.Reset()
	a.arena.Reset(a.supplier.Memory())
	a.counters = Counters{}
	if a.createFlags&CreateCheckPointers != 0 {
		a.live = swiss.NewMap[Pointer, int](42)
	}

	prologueSize := a.index.PrologueSize()
	_, err := a.supplier.Extend(block.WordSize + prologueSize + block.WordSize)
	if err != nil {
		a.logger.Error("failed to create heap sentinels", slog.Any("error", err))
		return errors.Wrap(errors.Mark(err, memutils.ErrSupplierExhausted), "failed to create heap sentinels")
	}
	a.arena.Reset(a.supplier.Memory())

	a.arena.Put(0, 0)
	a.root = block.DoubleWordSize
	a.arena.SetBlock(a.root, prologueSize, true)
	a.arena.SetEpilogue(a.root + prologueSize)
	a.index.Init(a.arena, a.root)

	_, err = a.extendHeap(a.chunkSize)
	return err
}
