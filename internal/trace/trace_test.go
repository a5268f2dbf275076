package trace_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/internal/trace"
	"github.com/vkngwrapper/heapkit/memlib"
	"github.com/vkngwrapper/heapkit/memutils"
	"github.com/vkngwrapper/heapkit/memutils/metadata"
)

const shortTrace = `20000
3
8
1
a 0 512
a 1 128
r 0 640
a 2 128
f 1
r 0 768
f 0
f 2
`

func readyHeap(t *testing.T, maxHeap int, options heap.CreateOptions) *heap.Allocator {
	region, err := memlib.NewRegion(maxHeap)
	require.NoError(t, err)

	allocator, err := heap.New(nil, region, options)
	require.NoError(t, err)

	return allocator
}

func TestParse(t *testing.T) {
	parsed, err := trace.Parse(strings.NewReader(shortTrace))
	require.NoError(t, err)

	require.Equal(t, 20000, parsed.SuggestedHeapSize)
	require.Equal(t, 3, parsed.NumIDs)
	require.Equal(t, 1, parsed.Weight)
	require.Len(t, parsed.Ops, 8)
	require.Equal(t, trace.Op{Kind: trace.OpAlloc, ID: 0, Size: 512}, parsed.Ops[0])
	require.Equal(t, trace.Op{Kind: trace.OpRealloc, ID: 0, Size: 640}, parsed.Ops[2])
	require.Equal(t, trace.Op{Kind: trace.OpFree, ID: 1}, parsed.Ops[4])
}

func TestParseHeaderOnOneLine(t *testing.T) {
	parsed, err := trace.Parse(strings.NewReader("100 1 2 1\n\na 0 10\nf 0\n"))
	require.NoError(t, err)
	require.Len(t, parsed.Ops, 2)
}

func TestParseErrors(t *testing.T) {
	testCases := map[string]string{
		"TruncatedHeader": "100\n1\n",
		"BadHeader":       "100\nten\n1\n1\n",
		"UnknownOp":       "100\n1\n1\n1\nx 0 10\n",
		"IDOutOfRange":    "100\n1\n1\n1\na 1 10\n",
		"MissingSize":     "100\n1\n1\n1\na 0\n",
		"NegativeSize":    "100\n1\n1\n1\na 0 -4\n",
		"ExtraFreeArg":    "100\n1\n1\n1\nf 0 10\n",
		"OpCountMismatch": "100\n1\n2\n1\na 0 10\n",
	}

	for name, text := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := trace.Parse(strings.NewReader(text))
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.rep")
	require.NoError(t, os.WriteFile(path, []byte(shortTrace), 0o644))

	loaded, err := trace.Load(path)
	require.NoError(t, err)
	require.Equal(t, "short.rep", loaded.Name)
	require.Len(t, loaded.Ops, 8)

	_, err = trace.Load(filepath.Join(t.TempDir(), "missing.rep"))
	require.Error(t, err)
}

func TestReplay(t *testing.T) {
	parsed, err := trace.Parse(strings.NewReader(shortTrace))
	require.NoError(t, err)
	parsed.Name = "short"

	allocator := readyHeap(t, 0, heap.CreateOptions{})
	result, err := trace.Replay(nil, allocator, parsed, trace.ReplayOptions{Check: true})
	require.NoError(t, err)

	require.Equal(t, "short", result.Name)
	require.Equal(t, 8, result.Ops)
	require.Equal(t, 896, result.PeakPayload)
	require.Equal(t, 4120, result.HeapSize)
	require.InDelta(t, 896.0/4120.0, result.Utilization, 1e-9)
	require.Equal(t, 3, result.Counters.MallocCalls)
	require.Equal(t, 2, result.Counters.ReallocCalls)
	require.Equal(t, 3, result.Counters.FreeCalls)
	require.Equal(t, 1, result.Counters.Relocations)
	require.Equal(t, 1, result.Counters.InPlaceReallocs)
}

func TestReplayAllConfigurations(t *testing.T) {
	parsed, err := trace.Parse(strings.NewReader(shortTrace))
	require.NoError(t, err)

	for _, index := range []heap.IndexKind{heap.IndexExplicit, heap.IndexImplicit} {
		for _, strategy := range []metadata.FitStrategy{metadata.FitFirst, metadata.FitNext, metadata.FitBest, metadata.FitWorst} {
			if index == heap.IndexExplicit && (strategy == metadata.FitNext || strategy == metadata.FitWorst) {
				continue
			}

			t.Run(index.String()+"/"+strategy.String(), func(t *testing.T) {
				allocator := readyHeap(t, 0, heap.CreateOptions{
					Flags:    heap.CreateCheckPointers,
					Index:    index,
					Strategy: strategy,
				})

				result, err := trace.Replay(nil, allocator, parsed, trace.ReplayOptions{Check: true})
				require.NoError(t, err)
				require.Equal(t, 896, result.PeakPayload)
				require.NoError(t, allocator.Validate())
			})
		}
	}
}

func TestReplayZeroSize(t *testing.T) {
	parsed, err := trace.Parse(strings.NewReader("100\n2\n6\n1\na 0 0\na 1 16\nr 1 0\nr 0 24\nf 0\nf 1\n"))
	require.NoError(t, err)

	allocator := readyHeap(t, 0, heap.CreateOptions{})
	result, err := trace.Replay(nil, allocator, parsed, trace.ReplayOptions{Check: true})
	require.NoError(t, err)
	require.Equal(t, 24, result.PeakPayload)
}

func TestReplaySupplierExhausted(t *testing.T) {
	parsed, err := trace.Parse(strings.NewReader("100\n2\n2\n1\na 0 100\na 1 8000\n"))
	require.NoError(t, err)

	allocator := readyHeap(t, 4200, heap.CreateOptions{})
	_, err = trace.Replay(nil, allocator, parsed, trace.ReplayOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrSupplierExhausted))
	require.NoError(t, allocator.Validate())
}

func TestReplayRejectsMisusedIDs(t *testing.T) {
	for name, text := range map[string]string{
		"DoubleAlloc":  "100\n1\n2\n1\na 0 8\na 0 8\n",
		"FreeUnknown":  "100\n1\n1\n1\nf 0\n",
		"ReallocFreed": "100\n1\n3\n1\na 0 8\nf 0\nr 0 8\n",
	} {
		t.Run(name, func(t *testing.T) {
			parsed, err := trace.Parse(strings.NewReader(text))
			require.NoError(t, err)

			_, err = trace.Replay(nil, readyHeap(t, 0, heap.CreateOptions{}), parsed, trace.ReplayOptions{})
			require.Error(t, err)
		})
	}
}

// overlappingHeap hands out the same payload for every allocation
type overlappingHeap struct {
	mem []byte
}

func (h *overlappingHeap) Malloc(size int) (heap.Pointer, error) { return 8, nil }
func (h *overlappingHeap) Realloc(ptr heap.Pointer, size int) (heap.Pointer, error) {
	return 8, nil
}
func (h *overlappingHeap) Free(ptr heap.Pointer) error { return nil }
func (h *overlappingHeap) Bytes(ptr heap.Pointer) ([]byte, error) {
	return h.mem[ptr:], nil
}
func (h *overlappingHeap) HeapSize() int           { return len(h.mem) }
func (h *overlappingHeap) Validate() error         { return nil }
func (h *overlappingHeap) Counters() heap.Counters { return heap.Counters{} }

func TestReplayCheckDetectsOverlap(t *testing.T) {
	parsed, err := trace.Parse(strings.NewReader("100\n2\n2\n1\na 0 16\na 1 16\n"))
	require.NoError(t, err)

	fake := &overlappingHeap{mem: make([]byte, 64)}
	_, err = trace.Replay(nil, fake, parsed, trace.ReplayOptions{})
	require.NoError(t, err)

	_, err = trace.Replay(nil, &overlappingHeap{mem: make([]byte, 64)}, parsed, trace.ReplayOptions{Check: true})
	require.Error(t, err)
}

func TestResultJSON(t *testing.T) {
	result := trace.Result{
		Name:        "short",
		Ops:         8,
		PeakPayload: 896,
		HeapSize:    4120,
		Utilization: 0.25,
		Counters:    heap.Counters{MallocCalls: 3, Relocations: 1},
	}

	writer := jwriter.NewWriter()
	result.WriteJSON(&writer)
	require.NoError(t, writer.Error())

	var parsed trace.Result
	require.NoError(t, json.Unmarshal(writer.Bytes(), &parsed))
	require.Equal(t, result, parsed)
}
