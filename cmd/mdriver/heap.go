package main

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/memlib"
	"github.com/vkngwrapper/heapkit/memutils/metadata"
	"golang.org/x/exp/slog"
)

// heapFlags are the allocator settings shared by every subcommand that builds a heap
type heapFlags struct {
	index   string
	fit     string
	chunk   int
	maxHeap int
	mapped  bool
	check   bool
}

func (f *heapFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.index, "index", "explicit", "Free block index: explicit or implicit")
	cmd.Flags().StringVar(&f.fit, "fit", "first", "Fit strategy: first, next, best, or worst (next and worst need --index implicit)")
	cmd.Flags().IntVar(&f.chunk, "chunk", heap.DefaultChunkSize, "Minimum number of bytes to extend the heap by")
	cmd.Flags().IntVar(&f.maxHeap, "max-heap", memlib.DefaultMaxHeap, "Capacity of the heap supplier in bytes")
	cmd.Flags().BoolVar(&f.mapped, "mapped", false, "Back the heap with an anonymous memory mapping instead of a byte slice")
	cmd.Flags().BoolVar(&f.check, "check", false, "Validate the heap and every payload after each operation")
}

func (f *heapFlags) options() (heap.CreateOptions, error) {
	index, ok := heap.ParseIndexKind(f.index)
	if !ok {
		return heap.CreateOptions{}, errors.Newf("unknown index %q", f.index)
	}

	strategy, ok := metadata.ParseFitStrategy(f.fit)
	if !ok {
		return heap.CreateOptions{}, errors.Newf("unknown fit strategy %q", f.fit)
	}

	options := heap.CreateOptions{
		Flags:     heap.CreateExternallySynchronized,
		Index:     index,
		Strategy:  strategy,
		ChunkSize: f.chunk,
	}
	if f.check {
		options.Flags |= heap.CreateCheckPointers
	}

	return options, nil
}

// newAllocator creates a fresh heap and its supplier. The returned closer releases the supplier.
func (f *heapFlags) newAllocator(logger *slog.Logger) (*heap.Allocator, io.Closer, error) {
	options, err := f.options()
	if err != nil {
		return nil, nil, err
	}

	var supplier heap.Supplier
	var closer io.Closer = nopCloser{}
	if f.mapped {
		mapped, err := memlib.NewMapped(f.maxHeap)
		if err != nil {
			return nil, nil, err
		}
		supplier = mapped
		closer = mapped
	} else {
		region, err := memlib.NewRegion(f.maxHeap)
		if err != nil {
			return nil, nil, err
		}
		supplier = region
	}

	allocator, err := heap.New(logger, supplier, options)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	return allocator, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
