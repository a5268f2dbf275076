// Package trace reads allocation trace files and replays them against a heap allocator.
//
// A trace file starts with four integers: the suggested heap size, the number of distinct
// allocation ids, the number of operations, and a weight used when scoring a set of traces. Each
// following non-empty line is one operation:
//
//	a <id> <size>    allocate size bytes and remember the result as id
//	r <id> <size>    reallocate id to size bytes
//	f <id>           free id
package trace

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type OpKind uint32

const (
	OpAlloc OpKind = iota
	OpRealloc
	OpFree
)

var opKindMapping = map[OpKind]string{
	OpAlloc:   "OpAlloc",
	OpRealloc: "OpRealloc",
	OpFree:    "OpFree",
}

func (k OpKind) String() string {
	return opKindMapping[k]
}

// Op is a single operation from a trace. Size is unused for OpFree.
type Op struct {
	Kind OpKind
	ID   int
	Size int
}

type Trace struct {
	Name              string
	SuggestedHeapSize int
	NumIDs            int
	Weight            int
	Ops               []Op
}

// Load reads and parses the trace file at path. The trace is named after the file.
func Load(path string) (*Trace, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open trace %s", path)
	}
	defer file.Close()

	t, err := Parse(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse trace %s", path)
	}

	t.Name = filepath.Base(path)
	return t, nil
}

// Parse reads a trace from r. Every operation must reference an id below the trace's id count,
// and the number of operations must match the header.
func Parse(r io.Reader) (*Trace, error) {
	scanner := bufio.NewScanner(r)

	var header []int
	var numOps int
	t := &Trace{}

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if len(header) < 4 {
			for _, field := range fields {
				value, err := strconv.Atoi(field)
				if err != nil || value < 0 {
					return nil, errors.Newf("line %d: invalid header value %q", lineNumber, field)
				}
				header = append(header, value)
			}

			if len(header) > 4 {
				return nil, errors.Newf("line %d: the header holds %d values, expected 4", lineNumber, len(header))
			}
			if len(header) == 4 {
				t.SuggestedHeapSize, t.NumIDs, numOps, t.Weight = header[0], header[1], header[2], header[3]
				t.Ops = make([]Op, 0, numOps)
			}
			continue
		}

		op, err := parseOp(fields, t.NumIDs)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNumber)
		}
		t.Ops = append(t.Ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read trace")
	}

	if len(header) < 4 {
		return nil, errors.New("trace ended before the header was complete")
	}

	if len(t.Ops) != numOps {
		return nil, errors.Newf("the header announces %d operations, but the trace holds %d", numOps, len(t.Ops))
	}

	return t, nil
}

func parseOp(fields []string, numIDs int) (Op, error) {
	var op Op
	var expectedFields int

	switch fields[0] {
	case "a":
		op.Kind = OpAlloc
		expectedFields = 3
	case "r":
		op.Kind = OpRealloc
		expectedFields = 3
	case "f":
		op.Kind = OpFree
		expectedFields = 2
	default:
		return op, errors.Newf("unknown operation %q", fields[0])
	}

	if len(fields) != expectedFields {
		return op, errors.Newf("operation %q takes %d arguments, but %d were provided", fields[0], expectedFields-1, len(fields)-1)
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 || id >= numIDs {
		return op, errors.Newf("invalid id %q, the trace declares %d ids", fields[1], numIDs)
	}
	op.ID = id

	if expectedFields == 3 {
		size, err := strconv.Atoi(fields[2])
		if err != nil || size < 0 {
			return op, errors.Newf("invalid size %q", fields[2])
		}
		op.Size = size
	}

	return op, nil
}
