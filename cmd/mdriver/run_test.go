package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/memutils/metadata"
)

func TestHeapFlagsOptions(t *testing.T) {
	resetFlags()
	runFlags.index = "implicit"
	runFlags.fit = "next"
	runFlags.check = true

	options, err := runFlags.options()
	require.NoError(t, err)
	require.Equal(t, heap.CreateOptions{
		Flags:     heap.CreateExternallySynchronized | heap.CreateCheckPointers,
		Index:     heap.IndexImplicit,
		Strategy:  metadata.FitNext,
		ChunkSize: 4096,
	}, options)

	runFlags.index = "segregated"
	_, err = runFlags.options()
	require.Error(t, err)

	runFlags.index = "explicit"
	runFlags.fit = "closest"
	_, err = runFlags.options()
	require.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name        string
		index       string
		fit         string
		check       bool
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "explicit first fit",
			index:       "explicit",
			fit:         "first",
			wantContain: []string{"short1-bal.rep", "realloc-short.rep", "Total"},
		},
		{
			name:        "implicit next fit with checks",
			index:       "implicit",
			fit:         "next",
			check:       true,
			wantContain: []string{"short1-bal.rep", "util"},
		},
		{
			name:    "next fit needs the implicit index",
			index:   "explicit",
			fit:     "next",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			runFlags.index = tt.index
			runFlags.fit = tt.fit
			runFlags.check = tt.check

			output, err := captureOutput(t, func() error {
				return runTraces([]string{
					testTracePath(t, "short1-bal.rep"),
					testTracePath(t, "realloc-short.rep"),
				})
			})
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			for _, want := range tt.wantContain {
				require.Contains(t, output, want)
			}
		})
	}
}

func TestRunCommandJSON(t *testing.T) {
	resetFlags()
	jsonOut = true
	runFlags.check = true

	output, err := captureOutput(t, func() error {
		return runTraces([]string{testTracePath(t, "realloc-short.rep")})
	})
	require.NoError(t, err)

	var results []struct {
		Name        string
		Ops         int
		PeakPayload int
		HeapSize    int
		Counters    heap.Counters
	}
	require.NoError(t, json.Unmarshal([]byte(output), &results))
	require.Len(t, results, 1)
	require.Equal(t, "realloc-short.rep", results[0].Name)
	require.Equal(t, 10, results[0].Ops)
	require.Equal(t, 4, results[0].Counters.Relocations+results[0].Counters.InPlaceReallocs)
}

func TestMapCommand(t *testing.T) {
	resetFlags()
	mapStop = 2

	output, err := captureOutput(t, func() error {
		return runMap(testTracePath(t, "short1-bal.rep"))
	})
	require.NoError(t, err)
	require.Contains(t, output, "after 2 ops")
	require.Contains(t, output, "allocated")
	require.Equal(t, 2, strings.Count(output, "allocated"))

	resetFlags()
	jsonOut = true

	output, err = captureOutput(t, func() error {
		return runMap(testTracePath(t, "short1-bal.rep"))
	})
	require.NoError(t, err)

	var detailed struct {
		TotalBytes int
		Blocks     []struct {
			Type string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(output), &detailed))
	require.Len(t, detailed.Blocks, 1)
	require.Equal(t, "Free", detailed.Blocks[0].Type)
}
