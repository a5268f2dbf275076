package heap

// coalesce merges the newly freed block at bp with whichever of its physical neighbors are free
// and inserts the result into the free index. bp's header and footer must already be marked
// free, and bp must not already be in the index. The payload offset of the merged block is
// returned.
func (a *Allocator) coalesce(bp int) int {
	prevAllocated := a.arena.PrevAllocated(bp)
	next := a.arena.Next(bp)
	nextAllocated := a.arena.Allocated(next)
	size := a.arena.Size(bp)

	switch {
	case prevAllocated && nextAllocated:
		a.index.Insert(bp)
		return bp

	case prevAllocated && !nextAllocated:
		a.index.Remove(next)
		size += a.arena.Size(next)

	case !prevAllocated && nextAllocated:
		prev := a.arena.Prev(bp)
		a.index.Remove(prev)
		size += a.arena.Size(prev)
		bp = prev

	default:
		prev := a.arena.Prev(bp)
		a.index.Remove(prev)
		a.index.Remove(next)
		size += a.arena.Size(prev) + a.arena.Size(next)
		bp = prev
	}

	a.arena.SetBlock(bp, size, false)
	a.counters.Coalesces++
	a.index.Merged(bp)
	a.index.Insert(bp)

	return bp
}
