package generate

import "container/heap"

// state is a partial password, START included, with its joint probability.
type state struct {
	s string
	p float64
}

// frontier is a max-heap on probability.
type frontier []state

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].p > f[j].p }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) {
	*f = append(*f, x.(state))
}

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	x := old[n-1]
	old[n-1] = state{}
	*f = old[:n-1]
	return x
}

// shrink keeps the keep most probable states and restores the heap. It
// returns the number of states dropped.
func (f *frontier) shrink(keep int) int {
	if keep < 0 {
		keep = 0
	}
	n := len(*f)
	if n <= keep {
		return 0
	}
	selectTop(*f, keep)
	clear((*f)[keep:])
	*f = (*f)[:keep]
	heap.Init(f)
	return n - keep
}

// selectTop partially orders states so that the k most probable occupy
// states[:k], in no particular order. Expected linear time.
func selectTop(states []state, k int) {
	lo, hi := 0, len(states)-1
	for lo < hi {
		p := partition(states, lo, hi)
		switch {
		case p == k:
			return
		case p < k:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition moves states more probable than the middle pivot to its left
// and returns the pivot's final index.
func partition(states []state, lo, hi int) int {
	mid := lo + (hi-lo)/2
	states[mid], states[hi] = states[hi], states[mid]
	pivot := states[hi].p
	i := lo
	for j := lo; j < hi; j++ {
		if states[j].p > pivot {
			states[i], states[j] = states[j], states[i]
			i++
		}
	}
	states[i], states[hi] = states[hi], states[i]
	return i
}
