package heap_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/heap"
	mock_heap "github.com/vkngwrapper/heapkit/heap/mocks"
	"github.com/vkngwrapper/heapkit/memlib"
	"github.com/vkngwrapper/heapkit/memutils"
	"go.uber.org/mock/gomock"
)

func TestSupplierFailureDuringMalloc(t *testing.T) {
	ctrl := gomock.NewController(t)

	region, err := memlib.NewRegion(0)
	require.NoError(t, err)

	supplier := mock_heap.NewMockSupplier(ctrl)
	supplier.EXPECT().Reset().Do(region.Reset)
	supplier.EXPECT().Memory().DoAndReturn(region.Memory).AnyTimes()
	gomock.InOrder(
		supplier.EXPECT().Extend(24).DoAndReturn(region.Extend),
		supplier.EXPECT().Extend(4096).DoAndReturn(region.Extend),
		supplier.EXPECT().Extend(blockSize(8192)).Return(-1, errors.New("backing store is full")),
	)

	allocator, err := heap.New(nil, supplier, heap.CreateOptions{})
	require.NoError(t, err)
	before := heapBlocks(t, allocator)

	ptr, err := allocator.Malloc(8192)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrSupplierExhausted))
	require.Equal(t, heap.NilPointer, ptr)
	require.Equal(t, before, heapBlocks(t, allocator))
	require.NoError(t, allocator.Validate())
}

func TestSupplierFailureDuringInit(t *testing.T) {
	ctrl := gomock.NewController(t)

	supplier := mock_heap.NewMockSupplier(ctrl)
	supplier.EXPECT().Reset()
	supplier.EXPECT().Memory().Return(nil).AnyTimes()
	supplier.EXPECT().Extend(24).Return(-1, errors.New("no memory at all"))

	_, err := heap.New(nil, supplier, heap.CreateOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrSupplierExhausted))
}

func TestSupplierChunkRounding(t *testing.T) {
	ctrl := gomock.NewController(t)

	region, err := memlib.NewRegion(0)
	require.NoError(t, err)

	supplier := mock_heap.NewMockSupplier(ctrl)
	supplier.EXPECT().Reset().Do(region.Reset)
	supplier.EXPECT().Memory().DoAndReturn(region.Memory).AnyTimes()
	gomock.InOrder(
		supplier.EXPECT().Extend(16).DoAndReturn(region.Extend),
		supplier.EXPECT().Extend(64).DoAndReturn(region.Extend),
		// A 100 byte request needs a block larger than the chunk
		supplier.EXPECT().Extend(blockSize(100)).DoAndReturn(region.Extend),
	)

	allocator, err := heap.New(nil, supplier, heap.CreateOptions{Index: heap.IndexImplicit, ChunkSize: 64})
	require.NoError(t, err)

	ptr, err := allocator.Malloc(100)
	require.NoError(t, err)
	require.Equal(t, heap.Pointer(16), ptr)
	require.NoError(t, allocator.Validate())
}
