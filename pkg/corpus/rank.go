package corpus

import (
	"cmp"
	"iter"
	"slices"
	"sort"
)

// Ranked is one corpus entry with its position in descending-frequency
// order. Rank is 1-based.
type Ranked struct {
	Rank  int
	ID    int
	Key   string
	Count uint64
}

func (c *Corpus) ranks() {
	c.rankOnce.Do(func() {
		ids := make([]int, len(c.keys))
		for i := range ids {
			ids[i] = i
		}
		slices.SortStableFunc(ids, func(a, b int) int {
			return cmp.Compare(c.freq[b], c.freq[a])
		})
		sorted := make([]uint64, len(ids))
		for i, id := range ids {
			sorted[i] = c.freq[id]
		}
		c.byRank = ids
		c.sortedFreq = sorted
	})
}

// RankOf is 1 plus the number of entries with a strictly greater count.
// Ties share a rank. An absent key ranks after every stored key.
func (c *Corpus) RankOf(key string) int {
	c.ranks()
	f := c.Lookup(key)
	return 1 + sort.Search(len(c.sortedFreq), func(i int) bool {
		return c.sortedFreq[i] <= f
	})
}

// GuessRanks ranks several keys at once.
func (c *Corpus) GuessRanks(keys []string) []int {
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = c.RankOf(k)
	}
	return out
}

// KeyAtRank returns the key at 1-based position r of the frequency
// ordering. Ties are broken by id.
func (c *Corpus) KeyAtRank(r int) (string, bool) {
	c.ranks()
	if r < 1 || r > len(c.byRank) {
		return "", false
	}
	return c.keys[c.byRank[r-1]], true
}

// TopQMass is the sum of the q largest counts. q of 0, or at least Len,
// returns the total.
func (c *Corpus) TopQMass(q int) uint64 {
	if q <= 0 || q >= len(c.keys) {
		return c.total
	}
	c.ranks()
	var sum uint64
	for _, f := range c.sortedFreq[:q] {
		sum += f
	}
	return sum
}

// ByFrequency yields entries from most to least frequent.
func (c *Corpus) ByFrequency() iter.Seq[Ranked] {
	return func(yield func(Ranked) bool) {
		c.ranks()
		rank := 0
		for i, id := range c.byRank {
			if i == 0 || c.sortedFreq[i] != c.sortedFreq[i-1] {
				rank = i + 1
			}
			if !yield(Ranked{Rank: rank, ID: id, Key: c.keys[id], Count: c.freq[id]}) {
				return
			}
		}
	}
}
