package heap_test

import (
	"encoding/json"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/memutils/metadata"
)

type detailedMap struct {
	Index      string
	Strategy   string
	Flags      string
	TotalBytes int
	ChunkSize  int
	FreeBlocks int
	Counters   heap.Counters
	Blocks     []struct {
		Offset        int
		Size          int
		Type          string
		RequestedSize int
	}
}

func TestPrintDetailedMap(t *testing.T) {
	allocator := readyAllocator(t, 0, heap.CreateOptions{
		Flags:    heap.CreateCheckPointers,
		Index:    heap.IndexImplicit,
		Strategy: metadata.FitBest,
	})
	mustMalloc(t, allocator, 20)

	writer := jwriter.NewWriter()
	allocator.PrintDetailedMap(&writer)
	require.NoError(t, writer.Error())

	var parsed detailedMap
	require.NoError(t, json.Unmarshal(writer.Bytes(), &parsed))

	require.Equal(t, "IndexImplicit", parsed.Index)
	require.Equal(t, "FitBest", parsed.Strategy)
	require.Equal(t, "CreateCheckPointers", parsed.Flags)
	require.Equal(t, 4112, parsed.TotalBytes)
	require.Equal(t, heap.DefaultChunkSize, parsed.ChunkSize)
	require.Equal(t, 1, parsed.FreeBlocks)
	require.Equal(t, heap.Counters{
		MallocCalls:   1,
		Extensions:    1,
		ExtendedBytes: 4096,
		Splits:        1,
	}, parsed.Counters)

	asize := blockSize(20)
	require.Len(t, parsed.Blocks, 2)
	require.Equal(t, 16, parsed.Blocks[0].Offset)
	require.Equal(t, asize, parsed.Blocks[0].Size)
	require.Equal(t, "Allocation", parsed.Blocks[0].Type)
	require.Equal(t, 20, parsed.Blocks[0].RequestedSize)
	require.Equal(t, 16+asize, parsed.Blocks[1].Offset)
	require.Equal(t, 4096-asize, parsed.Blocks[1].Size)
	require.Equal(t, "Free", parsed.Blocks[1].Type)
}
