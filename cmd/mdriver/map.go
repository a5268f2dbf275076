package main

import (
	"os"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/internal/trace"
	"github.com/vkngwrapper/heapkit/memutils"
)

var (
	mapFlags heapFlags
	mapStop  int
)

func init() {
	cmd := newMapCmd()
	mapFlags.register(cmd)
	cmd.Flags().IntVar(&mapStop, "stop", -1, "Stop after this many operations instead of replaying the whole trace")
	rootCmd.AddCommand(cmd)
}

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map <trace>",
		Short: "Replay a trace and dump the resulting heap",
		Long: `The map command replays a trace, optionally stopping part way through, and prints
every block of the resulting heap. With --json the full detailed map is written instead.

Example:
  mdriver map traces/short1-bal.rep
  mdriver map traces/short1-bal.rep --stop 6 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMap(args[0])
		},
	}
	return cmd
}

func runMap(path string) error {
	t, err := trace.Load(path)
	if err != nil {
		return err
	}

	if mapStop >= 0 && mapStop < len(t.Ops) {
		t.Ops = t.Ops[:mapStop]
	}

	logger := newLogger()
	allocator, closer, err := mapFlags.newAllocator(logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	_, err = trace.Replay(logger, allocator, t, trace.ReplayOptions{Check: mapFlags.check})
	if err != nil {
		return err
	}

	if err := allocator.CheckCorruption(); err != nil {
		return err
	}

	if jsonOut {
		writer := jwriter.NewWriter()
		allocator.PrintDetailedMap(&writer)
		if err := writer.Error(); err != nil {
			return err
		}
		_, err := os.Stdout.Write(append(writer.Bytes(), '\n'))
		return err
	}

	var stats memutils.DetailedStatistics
	stats.Clear()
	allocator.AddDetailedStatistics(&stats)

	printInfo("%s after %d ops: heap %d B, %d allocations (%d B), %d free blocks (%d B)\n",
		t.Name, len(t.Ops), stats.HeapBytes, stats.AllocationCount, stats.AllocationBytes,
		stats.FreeBlockCount, stats.FreeBytes)

	return allocator.VisitAllBlocks(func(ptr heap.Pointer, size int, free bool) error {
		state := "allocated"
		if free {
			state = "free"
		}
		printInfo("  %8d  %8d  %s\n", ptr, size, state)
		return nil
	})
}
