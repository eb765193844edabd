package ngram

import (
	"container/heap"
	"context"
	"fmt"
	"iter"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/alphabet"
	"github.com/rchatterjee/pwmodels/pkg/leak"
	"github.com/rchatterjee/pwmodels/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Options configures training.
type Options struct {
	// Order is n, the longest window counted. Must be at least 1.
	Order int
	// MinLength drops passwords with fewer valid-alphabet characters.
	MinLength int
	// TopK stores the K most frequent passwords verbatim. Zero disables.
	TopK int
	// CacheSize bounds the distribution cache. Zero uses DefaultCacheSize.
	CacheSize int
}

// Trainer accumulates window counts for one stream of passwords. Trainers
// for any split of the input can be merged; the result equals training on
// the whole input at once.
type Trainer struct {
	opts     Options
	counts   map[string]uint64
	pws      map[string]uint64
	totalf   uint64
	skipped  int
	filtered int
}

// NewTrainer validates opts and returns an empty trainer.
func NewTrainer(opts Options) (*Trainer, error) {
	if opts.Order < 1 {
		return nil, fmt.Errorf("ngram order must be at least 1, got %d", opts.Order)
	}
	return &Trainer{
		opts:   opts,
		counts: make(map[string]uint64),
		pws:    make(map[string]uint64),
	}, nil
}

// Add folds one password with its frequency into the counts.
func (t *Trainer) Add(pw string, count uint64) {
	if count == 0 {
		return
	}
	if alphabet.HasControl(pw) {
		t.skipped++
		metrics.PasswordsFiltered.Inc()
		log.Warnf("Skipping password with reserved control bytes: %q", utils.Printable(pw))
		return
	}
	if alphabet.ValidLength(pw) < t.opts.MinLength {
		t.filtered++
		metrics.PasswordsFiltered.Inc()
		return
	}

	w := alphabet.Wrap(pw)
	for i := range len(w) {
		for l := 1; l <= t.opts.Order && i+l <= len(w); l++ {
			t.counts[w[i:i+l]] += count
		}
	}
	t.pws[pw] += count
	t.totalf += count
	metrics.PasswordsTrained.Inc()
}

// Merge adds o's counts into t. Counts of a password seen by both trainers
// are summed, so merge order does not matter.
func (t *Trainer) Merge(o *Trainer) {
	for tok, c := range o.counts {
		t.counts[tok] += c
	}
	for pw, c := range o.pws {
		t.pws[pw] += c
	}
	t.totalf += o.totalf
	t.skipped += o.skipped
	t.filtered += o.filtered
}

// topK returns the K most frequent passwords long enough to be stored
// verbatim. Ties go to the lexicographically smaller password.
func (t *Trainer) topK() []candidate {
	if t.opts.TopK <= 0 {
		return nil
	}
	var top topHeap
	for pw, c := range t.pws {
		// the wrapped form must be longer than n
		if len(pw)+2 <= t.opts.Order {
			continue
		}
		cand := candidate{pw: pw, count: c}
		if top.Len() < t.opts.TopK {
			heap.Push(&top, cand)
			continue
		}
		if worse(top[0], cand) {
			top[0] = cand
			heap.Fix(&top, 0)
		}
	}
	return top
}

// Finish adds the verbatim entries and indexes the counts into a Model.
// The trainer must not be used afterwards.
func (t *Trainer) Finish() (*Model, error) {
	distinct := uint64(len(t.pws))
	npws, totalf := distinct, t.totalf
	top := t.topK()
	for _, cand := range top {
		t.counts[alphabet.Wrap(cand.pw)] += cand.count
		totalf += cand.count
		npws++
	}

	log.Infof("Trained %d-gram model on %s passwords (%s occurrences); %d skipped, %d below min length, %d verbatim",
		t.opts.Order, utils.FormatWithCommas(distinct), utils.FormatWithCommas(t.totalf), t.skipped, t.filtered, len(top))
	m, err := newModel(t.opts.Order, t.counts, npws, totalf, t.opts.CacheSize)
	t.counts, t.pws = nil, nil
	return m, err
}

// Train builds a model from a single stream.
func Train(entries iter.Seq[leak.Entry], opts Options) (*Model, error) {
	t, err := NewTrainer(opts)
	if err != nil {
		return nil, err
	}
	for e := range entries {
		t.Add(e.Password, e.Count)
	}
	return t.Finish()
}

// TrainShards trains one Trainer per shard concurrently and merges them.
// The first shard error, or ctx cancellation, aborts the run.
func TrainShards(ctx context.Context, shards []iter.Seq[leak.Entry], opts Options) (*Model, error) {
	if _, err := NewTrainer(opts); err != nil {
		return nil, err
	}
	trainers := make([]*Trainer, len(shards))
	g, ctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		g.Go(func() error {
			t, _ := NewTrainer(opts)
			for e := range shard {
				if err := ctx.Err(); err != nil {
					return err
				}
				t.Add(e.Password, e.Count)
			}
			trainers[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sharded training: %w", err)
	}

	merged, _ := NewTrainer(opts)
	for _, t := range trainers {
		merged.Merge(t)
	}
	log.Debugf("Merged %d training shards", len(shards))
	return merged.Finish()
}

type candidate struct {
	pw    string
	count uint64
}

// worse orders candidates by count, breaking ties so the larger password
// loses.
func worse(a, b candidate) bool {
	if a.count != b.count {
		return a.count < b.count
	}
	return a.pw > b.pw
}

// topHeap is a min-heap holding the best verbatim candidates, worst on top.
type topHeap []candidate

func (h topHeap) Len() int           { return len(h) }
func (h topHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h topHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *topHeap) Push(x any) {
	*h = append(*h, x.(candidate))
}

func (h *topHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
