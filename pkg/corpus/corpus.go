// Package corpus holds an immutable password→count index built from a leak
// in one streaming pass. Keys get dense ids in lexicographic order, a
// patricia trie serves exact and prefix lookups, and the frequency array is
// kept parallel to the ids.
package corpus

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/leak"
	"github.com/rchatterjee/pwmodels/pkg/metrics"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Options configures Build.
type Options struct {
	// PersistTo, when set, saves the corpus under this base path as part of
	// the build. A failed save fails the build.
	PersistTo string
}

// Corpus is a read-only frequency index. All methods are safe for
// concurrent use.
type Corpus struct {
	keys  []string
	freq  []uint64
	total uint64
	trie  *patricia.Trie

	rankOnce   sync.Once
	byRank     []int
	sortedFreq []uint64

	cumOnce sync.Once
	cum     []uint64
}

// Build aggregates entries into a corpus. Duplicate passwords have their
// counts summed; empty passwords and zero counts are dropped.
func Build(entries iter.Seq[leak.Entry], opts Options) (*Corpus, error) {
	counts := make(map[string]uint64)
	var dropped int
	for e := range entries {
		if e.Password == "" || e.Count == 0 {
			dropped++
			continue
		}
		counts[e.Password] += e.Count
	}
	if dropped > 0 {
		log.Debugf("Dropped %d empty or zero-count entries", dropped)
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	freq := make([]uint64, len(keys))
	var total uint64
	for i, k := range keys {
		freq[i] = counts[k]
		total += freq[i]
	}

	c := fromSorted(keys, freq, total)
	metrics.CorpusBuilds.Inc()
	log.Infof("Built corpus: %s distinct passwords, %s total occurrences",
		utils.FormatWithCommas(uint64(len(keys))), utils.FormatWithCommas(total))

	if opts.PersistTo != "" {
		if err := c.Save(opts.PersistTo); err != nil {
			return nil, fmt.Errorf("failed to persist corpus: %w", err)
		}
	}
	return c, nil
}

// BuildFromFile streams a possibly compressed leak file into a corpus.
func BuildFromFile(path string, readOpts leak.Options, opts Options) (*Corpus, leak.Stats, error) {
	rc, err := leak.Open(path)
	if err != nil {
		return nil, leak.Stats{}, err
	}
	defer rc.Close()

	r := leak.NewReader(rc, readOpts)
	c, err := Build(r.Entries(), opts)
	if err != nil {
		return nil, r.Stats(), err
	}
	if err := r.Err(); err != nil {
		return nil, r.Stats(), err
	}
	return c, r.Stats(), nil
}

// fromSorted assembles a corpus from strictly increasing keys.
func fromSorted(keys []string, freq []uint64, total uint64) *Corpus {
	trie := patricia.NewTrie()
	for id, k := range keys {
		trie.Insert(patricia.Prefix(k), id)
	}
	return &Corpus{keys: keys, freq: freq, total: total, trie: trie}
}

// Len is the number of distinct passwords.
func (c *Corpus) Len() int {
	return len(c.keys)
}

// Total is the sum of all counts.
func (c *Corpus) Total() uint64 {
	return c.total
}

// IDOf returns the dense id of key.
func (c *Corpus) IDOf(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	item := c.trie.Get(patricia.Prefix(key))
	if item == nil {
		return 0, false
	}
	return item.(int), true
}

// KeyOf is the inverse of IDOf.
func (c *Corpus) KeyOf(id int) (string, bool) {
	if id < 0 || id >= len(c.keys) {
		return "", false
	}
	return c.keys[id], true
}

// FreqOf returns the count stored for id, or 0 when out of range.
func (c *Corpus) FreqOf(id int) uint64 {
	if id < 0 || id >= len(c.freq) {
		return 0
	}
	return c.freq[id]
}

// Lookup returns the count of key, 0 if absent.
func (c *Corpus) Lookup(key string) uint64 {
	id, ok := c.IDOf(key)
	if !ok {
		return 0
	}
	return c.freq[id]
}

// Prob is the empirical probability of key. It lets a corpus stand in as a
// histogram model wherever a scorer is expected.
func (c *Corpus) Prob(key string) (float64, error) {
	if c.total == 0 {
		return 0, nil
	}
	return float64(c.Lookup(key)) / float64(c.total), nil
}

// Entries yields (key, count) in id order.
func (c *Corpus) Entries() iter.Seq2[string, uint64] {
	return func(yield func(string, uint64) bool) {
		for id, k := range c.keys {
			if !yield(k, c.freq[id]) {
				return
			}
		}
	}
}

// PrefixEntries yields every key starting with prefix, in id order.
func (c *Corpus) PrefixEntries(prefix string) iter.Seq2[string, uint64] {
	if prefix == "" {
		return c.Entries()
	}
	return func(yield func(string, uint64) bool) {
		var ids []int
		c.trie.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, item patricia.Item) error {
			ids = append(ids, item.(int))
			return nil
		})
		slices.Sort(ids)
		for _, id := range ids {
			if !yield(c.keys[id], c.freq[id]) {
				return
			}
		}
	}
}
