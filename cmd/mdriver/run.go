package main

import (
	"os"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/heapkit/internal/trace"
	"golang.org/x/exp/slog"
)

var runFlags heapFlags

func init() {
	cmd := newRunCmd()
	runFlags.register(cmd)
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <trace>...",
		Short: "Replay traces and report heap utilization",
		Long: `The run command replays each trace against a freshly initialized heap and reports
the number of operations, the peak number of live payload bytes, the final heap size,
and the resulting utilization.

Example:
  mdriver run traces/amptjp-bal.rep
  mdriver run traces/*.rep --index implicit --fit next
  mdriver run traces/realloc-bal.rep --check --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraces(args)
		},
	}
	return cmd
}

func runTraces(paths []string) error {
	logger := newLogger()

	var results []trace.Result
	for _, path := range paths {
		printVerbose("Loading trace: %s\n", path)

		t, err := trace.Load(path)
		if err != nil {
			return err
		}

		result, err := replayTrace(logger, t)
		if err != nil {
			return err
		}
		results = append(results, result)

		if !jsonOut {
			printResult(result)
		}
	}

	if jsonOut {
		writer := jwriter.NewWriter()
		arr := writer.Array()
		for _, result := range results {
			result.WriteJSON(&writer)
		}
		arr.End()

		if err := writer.Error(); err != nil {
			return err
		}
		_, err := os.Stdout.Write(append(writer.Bytes(), '\n'))
		return err
	}

	if len(results) > 1 {
		printSummary(results)
	}

	logger.Debug("all traces replayed", slog.Int("Traces", len(results)))
	return nil
}

func replayTrace(logger *slog.Logger, t *trace.Trace) (trace.Result, error) {
	allocator, closer, err := runFlags.newAllocator(logger)
	if err != nil {
		return trace.Result{}, err
	}
	defer closer.Close()

	return trace.Replay(logger, allocator, t, trace.ReplayOptions{Check: runFlags.check})
}

func printResult(result trace.Result) {
	printInfo("%-24s %8d ops  peak %10d B  heap %10d B  util %5.1f%%\n",
		result.Name, result.Ops, result.PeakPayload, result.HeapSize, result.Utilization*100)

	c := result.Counters
	printVerbose("  malloc %d  free %d  realloc %d (in place %d, moved %d)\n",
		c.MallocCalls, c.FreeCalls, c.ReallocCalls, c.InPlaceReallocs, c.Relocations)
	printVerbose("  extensions %d (%d B)  splits %d  coalesces %d\n",
		c.Extensions, c.ExtendedBytes, c.Splits, c.Coalesces)
}

func printSummary(results []trace.Result) {
	var ops int
	var utilization float64
	for _, result := range results {
		ops += result.Ops
		utilization += result.Utilization
	}

	printInfo("%-24s %8d ops  mean util %5.1f%%\n", "Total", ops, utilization/float64(len(results))*100)
}
