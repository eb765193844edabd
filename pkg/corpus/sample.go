package corpus

import (
	"iter"
	"math/rand/v2"
	"sort"

	"github.com/rchatterjee/pwmodels/pkg/sample"
)

func (c *Corpus) cumulative() []uint64 {
	c.cumOnce.Do(func() {
		cum := make([]uint64, len(c.freq))
		var run uint64
		for i, f := range c.freq {
			run += f
			cum[i] = run
		}
		c.cum = cum
	})
	return c.cum
}

// SampleByDistribution draws n keys with replacement, each with probability
// count/total.
func (c *Corpus) SampleByDistribution(n int, rng *rand.Rand) []string {
	if n <= 0 || c.total == 0 {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	cum := c.cumulative()
	out := make([]string, n)
	for i := range out {
		x := rng.Uint64N(c.total)
		id := sort.Search(len(cum), func(j int) bool { return cum[j] > x })
		out[i] = c.keys[id]
	}
	return out
}

// SampleFollowing draws n keys in a single pass over the corpus in id order.
// With unique set no occurrence is drawn twice.
func (c *Corpus) SampleFollowing(n int, rng *rand.Rand, unique bool) ([]string, error) {
	draws, err := sample.Following(c.weights(), n, float64(c.total), sample.Options{Rand: rng, Unique: unique})
	if err != nil {
		return sample.Items(draws), err
	}
	return sample.Items(draws), nil
}

func (c *Corpus) weights() iter.Seq2[string, float64] {
	return func(yield func(string, float64) bool) {
		for k, f := range c.Entries() {
			if !yield(k, float64(f)) {
				return
			}
		}
	}
}
