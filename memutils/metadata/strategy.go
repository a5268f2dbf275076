package metadata

// FitStrategy selects which free block a FreeIndex returns when more than one could satisfy a
// request.
type FitStrategy uint32

const (
	// FitFirst returns the first adequate block in scan order: heap order for the implicit index,
	// list order (most recently freed first) for the explicit index.
	FitFirst FitStrategy = iota
	// FitNext behaves like FitFirst, but each scan resumes where the previous successful scan
	// ended, wrapping around to the start of the heap. Only supported by the implicit index.
	FitNext
	// FitBest returns the smallest adequate block, stopping early on an exact match.
	FitBest
	// FitWorst returns the largest adequate block. Only supported by the implicit index.
	FitWorst
)

var fitStrategyMapping = map[FitStrategy]string{
	FitFirst: "FitFirst",
	FitNext:  "FitNext",
	FitBest:  "FitBest",
	FitWorst: "FitWorst",
}

func (s FitStrategy) String() string {
	return fitStrategyMapping[s]
}

// ParseFitStrategy maps the short names "first", "next", "best", and "worst" to a FitStrategy
func ParseFitStrategy(name string) (FitStrategy, bool) {
	switch name {
	case "first":
		return FitFirst, true
	case "next":
		return FitNext, true
	case "best":
		return FitBest, true
	case "worst":
		return FitWorst, true
	}

	return FitFirst, false
}
