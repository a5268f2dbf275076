package trace

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/memutils"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// Heap is the allocator surface a trace is replayed against. *heap.Allocator satisfies it.
type Heap interface {
	Malloc(size int) (heap.Pointer, error)
	Realloc(ptr heap.Pointer, size int) (heap.Pointer, error)
	Free(ptr heap.Pointer) error
	Bytes(ptr heap.Pointer) ([]byte, error)
	HeapSize() int
	Validate() error
	Counters() heap.Counters
}

type ReplayOptions struct {
	// Check fills every payload with a byte pattern and, after every operation, verifies that
	// live payloads still hold their pattern, that no two payloads overlap, and that the heap
	// passes Validate
	Check bool
}

// Result summarizes a replayed trace
type Result struct {
	Name string
	Ops  int
	// PeakPayload is the largest total of requested bytes that were live at the same time
	PeakPayload int
	HeapSize    int
	// Utilization is PeakPayload divided by HeapSize. Since the heap never shrinks, HeapSize is
	// also the largest the heap ever grew.
	Utilization float64
	Counters    heap.Counters
}

// WriteJSON writes the result as a JSON object
func (r Result) WriteJSON(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("Name").String(r.Name)
	obj.Name("Ops").Int(r.Ops)
	obj.Name("PeakPayload").Int(r.PeakPayload)
	obj.Name("HeapSize").Int(r.HeapSize)
	obj.Name("Utilization").Float64(r.Utilization)

	counters := obj.Name("Counters").Object()
	defer counters.End()

	counters.Name("MallocCalls").Int(r.Counters.MallocCalls)
	counters.Name("FreeCalls").Int(r.Counters.FreeCalls)
	counters.Name("ReallocCalls").Int(r.Counters.ReallocCalls)
	counters.Name("Extensions").Int(r.Counters.Extensions)
	counters.Name("ExtendedBytes").Int(r.Counters.ExtendedBytes)
	counters.Name("Splits").Int(r.Counters.Splits)
	counters.Name("Coalesces").Int(r.Counters.Coalesces)
	counters.Name("InPlaceReallocs").Int(r.Counters.InPlaceReallocs)
	counters.Name("Relocations").Int(r.Counters.Relocations)
}

type liveBlock struct {
	ptr  heap.Pointer
	size int
}

type replayer struct {
	logger  *slog.Logger
	heap    Heap
	options ReplayOptions

	live        map[int]liveBlock
	payload     int
	peakPayload int
}

// Replay runs every operation of t against h, which should be freshly initialized. The first
// allocator error, or in check mode the first inconsistency, stops the replay and is returned
// with the index of the failing operation.
func Replay(logger *slog.Logger, h Heap, t *Trace, options ReplayOptions) (Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &replayer{
		logger:  logger,
		heap:    h,
		options: options,
		live:    make(map[int]liveBlock, t.NumIDs),
	}

	for i, op := range t.Ops {
		err := r.apply(op)
		if err != nil {
			return Result{}, errors.Wrapf(err, "%s: operation %d (%s id %d)", t.Name, i, op.Kind, op.ID)
		}

		if options.Check {
			err = r.check()
			if err != nil {
				return Result{}, errors.Wrapf(err, "%s: after operation %d (%s id %d)", t.Name, i, op.Kind, op.ID)
			}
		}
	}

	result := Result{
		Name:        t.Name,
		Ops:         len(t.Ops),
		PeakPayload: r.peakPayload,
		HeapSize:    h.HeapSize(),
		Counters:    h.Counters(),
	}
	if result.HeapSize > 0 {
		result.Utilization = float64(result.PeakPayload) / float64(result.HeapSize)
	}

	logger.Debug("trace replayed",
		slog.String("Name", t.Name),
		slog.Int("Ops", result.Ops),
		slog.Int("PeakPayload", result.PeakPayload),
		slog.Int("HeapSize", result.HeapSize))

	return result, nil
}

func (r *replayer) apply(op Op) error {
	r.logger.Debug("trace op", slog.String("Kind", op.Kind.String()), slog.Int("ID", op.ID), slog.Int("Size", op.Size))

	switch op.Kind {
	case OpAlloc:
		if _, ok := r.live[op.ID]; ok {
			return errors.New("id is already allocated")
		}

		ptr, err := r.heap.Malloc(op.Size)
		if err != nil {
			return err
		}

		return r.record(op.ID, ptr, op.Size, 0)

	case OpRealloc:
		old, ok := r.live[op.ID]
		if !ok {
			return errors.New("id is not allocated")
		}

		ptr, err := r.heap.Realloc(old.ptr, op.Size)
		if err != nil {
			return err
		}

		r.payload -= old.size
		delete(r.live, op.ID)
		return r.record(op.ID, ptr, op.Size, memutils.Min(old.size, op.Size))

	case OpFree:
		old, ok := r.live[op.ID]
		if !ok {
			return errors.New("id is not allocated")
		}

		if r.options.Check {
			err := r.checkPattern(op.ID, old)
			if err != nil {
				return err
			}
		}

		err := r.heap.Free(old.ptr)
		if err != nil {
			return err
		}

		r.payload -= old.size
		delete(r.live, op.ID)
		return nil
	}

	return errors.Newf("unknown operation kind %d", op.Kind)
}

// record stores a block returned by Malloc or Realloc. The first preserved bytes were copied
// from the block's previous location and must still hold its pattern.
func (r *replayer) record(id int, ptr heap.Pointer, size int, preserved int) error {
	if ptr == heap.NilPointer {
		if size > 0 {
			return errors.Newf("allocator returned a nil pointer for %d bytes", size)
		}

		r.live[id] = liveBlock{}
		return nil
	}

	if ptr%8 != 0 {
		return errors.Newf("allocator returned misaligned pointer %d", ptr)
	}

	block := liveBlock{ptr: ptr, size: size}
	r.live[id] = block
	r.payload += size
	if r.payload > r.peakPayload {
		r.peakPayload = r.payload
	}

	if !r.options.Check {
		return nil
	}

	err := r.checkPattern(id, liveBlock{ptr: ptr, size: preserved})
	if err != nil {
		return err
	}

	payload, err := r.heap.Bytes(ptr)
	if err != nil {
		return err
	}
	if len(payload) < size {
		return errors.Newf("allocation at %d holds %d bytes, but %d were requested", ptr, len(payload), size)
	}

	value := pattern(id)
	for i := 0; i < size; i++ {
		payload[i] = value
	}

	return nil
}

func pattern(id int) byte {
	return byte(id%251) + 1
}

func (r *replayer) checkPattern(id int, block liveBlock) error {
	if block.size == 0 || block.ptr == heap.NilPointer {
		return nil
	}

	payload, err := r.heap.Bytes(block.ptr)
	if err != nil {
		return err
	}

	value := pattern(id)
	for i := 0; i < block.size; i++ {
		if payload[i] != value {
			return errors.Newf("payload byte %d of id %d at %d was overwritten", i, id, block.ptr)
		}
	}

	return nil
}

func (r *replayer) check() error {
	heapSize := r.heap.HeapSize()

	blocks := maps.Values(r.live)
	slices.SortFunc(blocks, func(a, b liveBlock) int {
		return int(a.ptr) - int(b.ptr)
	})

	end := 0
	for _, block := range blocks {
		if block.ptr == heap.NilPointer {
			continue
		}

		start := int(block.ptr)
		if start < end {
			return errors.Newf("the payload at %d overlaps the payload ending at %d", start, end)
		}

		end = start + block.size
		if end > heapSize {
			return errors.Newf("the payload at %d runs past the end of the %d byte heap", start, heapSize)
		}
	}

	return r.heap.Validate()
}
