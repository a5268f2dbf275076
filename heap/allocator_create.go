package heap

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/heap/internal/utils"
	"github.com/vkngwrapper/heapkit/memutils"
	"github.com/vkngwrapper/heapkit/memutils/block"
	"github.com/vkngwrapper/heapkit/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateExternallySynchronized ensures that this allocator will not be synchronized internally.
	// The consumer must guarantee it is used from only one goroutine at a time or is synchronized by
	// some other mechanism, but performance may improve because the internal mutex is not used.
	CreateExternallySynchronized CreateFlags = 1 << iota
	// CreateCheckPointers makes the allocator keep a table of live allocations outside the heap.
	// Free and Realloc will return memutils.ErrInvalidPointer instead of corrupting the heap when
	// they receive a pointer that is not a live allocation, such as a pointer that was already freed.
	CreateCheckPointers
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
	CreateCheckPointers:          "CreateCheckPointers",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for i := 0; i < 32; i++ {
		bit := CreateFlags(1) << i
		if f&bit == 0 {
			continue
		}

		name, ok := createFlagsMapping[bit]
		if !ok {
			name = fmt.Sprintf("CreateFlags(%#x)", uint32(bit))
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

// IndexKind selects how an Allocator keeps track of free blocks
type IndexKind uint32

const (
	// IndexExplicit threads a doubly-linked list through free blocks, so fit queries only visit
	// free blocks. This is the default.
	IndexExplicit IndexKind = iota
	// IndexImplicit keeps no index and walks every block in the heap to answer fit queries. It
	// is the only index that supports metadata.FitNext and metadata.FitWorst.
	IndexImplicit
)

var indexKindMapping = map[IndexKind]string{
	IndexExplicit: "IndexExplicit",
	IndexImplicit: "IndexImplicit",
}

func (k IndexKind) String() string {
	return indexKindMapping[k]
}

// ParseIndexKind maps the short names "explicit" and "implicit" to an IndexKind
func ParseIndexKind(name string) (IndexKind, bool) {
	switch name {
	case "explicit":
		return IndexExplicit, true
	case "implicit":
		return IndexImplicit, true
	}

	return IndexExplicit, false
}

const (
	// DefaultChunkSize is the minimum number of bytes the heap is extended by when no free block
	// can satisfy an allocation. It is equal to 4Kb.
	DefaultChunkSize int = 1 << 12
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags
	// Index chooses the free block index. The zero value is IndexExplicit.
	Index IndexKind
	// Strategy chooses which free block is used when several could satisfy a request. The zero
	// value is metadata.FitFirst.
	Strategy metadata.FitStrategy
	// ChunkSize is the minimum number of bytes to extend the heap by. It must be a multiple of 8.
	// The zero value selects DefaultChunkSize.
	ChunkSize int
}

// New creates a new Allocator on top of the provided supplier and initializes its heap.
//
// logger - Receives debug logging for every operation. It may be nil, in which case nothing is logged.
//
// supplier - The raw memory the heap lives in. The allocator resets it.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, supplier Supplier, options CreateOptions) (*Allocator, error) {
	if supplier == nil {
		return nil, errors.New("heap.New requires a non-nil Supplier")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	chunkSize := options.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	err := memutils.CheckMultiple(chunkSize, block.Alignment, "CreateOptions.ChunkSize")
	if err != nil {
		return nil, err
	}

	var index metadata.FreeIndex
	switch options.Index {
	case IndexExplicit:
		index, err = metadata.NewExplicitFreeList(options.Strategy)
	case IndexImplicit:
		index, err = metadata.NewImplicitFreeList(options.Strategy)
	default:
		return nil, errors.Newf("unknown index kind: %d", options.Index)
	}
	if err != nil {
		return nil, err
	}

	allocator := &Allocator{
		mutex:       utils.OptionalMutex{UseMutex: options.Flags&CreateExternallySynchronized == 0},
		logger:      logger,
		supplier:    supplier,
		createFlags: options.Flags,
		indexKind:   options.Index,
		chunkSize:   chunkSize,
		arena:       block.NewArena(nil),
		index:       index,
	}

	logger.Debug("Allocator::New",
		slog.String("Flags", options.Flags.String()),
		slog.String("Index", options.Index.String()),
		slog.String("Strategy", options.Strategy.String()),
		slog.Int("ChunkSize", chunkSize))

	err = allocator.init()
	if err != nil {
		return nil, err
	}

	return allocator, nil
}
