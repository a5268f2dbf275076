package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapkit/memutils"
)

// Counters tracks how often the allocator's operations and internal events have happened since the
// heap was last initialized
type Counters struct {
	MallocCalls  int
	FreeCalls    int
	ReallocCalls int

	// Extensions is the number of times the supplier was asked for more memory, including the
	// initial chunk
	Extensions    int
	ExtendedBytes int

	Splits    int
	Coalesces int

	// InPlaceReallocs counts Realloc calls that kept their pointer, and Relocations counts the ones
	// that had to move the payload
	InPlaceReallocs int
	Relocations     int
}

// AddStatistics adds the heap's block counts and byte totals to the provided Statistics
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	stats.HeapBytes += a.arena.Len()
	_ = a.visitAllBlocks(func(ptr Pointer, size int, free bool) error {
		if free {
			stats.FreeBlockCount++
			stats.FreeBytes += size
		} else {
			stats.AllocationCount++
			stats.AllocationBytes += size
		}
		return nil
	})
}

// AddDetailedStatistics adds the heap's block counts, byte totals, and size extremes to the
// provided DetailedStatistics
func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	stats.HeapBytes += a.arena.Len()
	_ = a.visitAllBlocks(func(ptr Pointer, size int, free bool) error {
		if free {
			stats.AddFreeBlock(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

// PrintDetailedMap writes a JSON object describing the heap's configuration, totals, and every
// block in address order
func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Index").String(a.indexKind.String())
	objState.Name("Strategy").String(a.index.Strategy().String())
	objState.Name("Flags").String(a.createFlags.String())
	objState.Name("TotalBytes").Int(a.arena.Len())
	objState.Name("ChunkSize").Int(a.chunkSize)
	objState.Name("FreeBlocks").Int(a.index.FreeBlockCount())

	countersObj := objState.Name("Counters").Object()
	countersObj.Name("MallocCalls").Int(a.counters.MallocCalls)
	countersObj.Name("FreeCalls").Int(a.counters.FreeCalls)
	countersObj.Name("ReallocCalls").Int(a.counters.ReallocCalls)
	countersObj.Name("Extensions").Int(a.counters.Extensions)
	countersObj.Name("ExtendedBytes").Int(a.counters.ExtendedBytes)
	countersObj.Name("Splits").Int(a.counters.Splits)
	countersObj.Name("Coalesces").Int(a.counters.Coalesces)
	countersObj.Name("InPlaceReallocs").Int(a.counters.InPlaceReallocs)
	countersObj.Name("Relocations").Int(a.counters.Relocations)
	countersObj.End()

	arrayState := objState.Name("Blocks").Array()
	defer arrayState.End()

	_ = a.visitAllBlocks(func(ptr Pointer, size int, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(int(ptr))
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String("Free")
		} else {
			obj.Name("Type").String("Allocation")
			if a.live != nil {
				requested, _ := a.live.Get(ptr)
				obj.Name("RequestedSize").Int(requested)
			}
		}

		return nil
	})
}
