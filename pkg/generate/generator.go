// Package generate enumerates passwords in non-increasing order of their
// estimated probability under a character model, using best-first search
// over partial strings with a bounded frontier.
package generate

import (
	"container/heap"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/alphabet"
	"github.com/rchatterjee/pwmodels/pkg/metrics"
	"github.com/rchatterjee/pwmodels/pkg/ngram"
)

const (
	// DefaultEpsilon scales the probability floor: states below
	// Epsilon/n² are never enqueued.
	DefaultEpsilon = 1e-9
	// DefaultMaxFrontier is the frontier size the governor shrinks back
	// towards.
	DefaultMaxFrontier = 1_000_000
)

// Distribution supplies the next-character distribution of a partial,
// START-prefixed string. *ngram.Model implements it.
type Distribution interface {
	NextCharDistribution(history string) ([]ngram.NextChar, error)
}

// Guess is one generated password.
type Guess struct {
	Password string  `msgpack:"pw"`
	Prob     float64 `msgpack:"p"`
}

// Options tunes a generator run.
type Options struct {
	// Epsilon sets the probability floor Epsilon/n². Zero uses
	// DefaultEpsilon.
	Epsilon float64
	// MaxFrontier bounds memory: above 1.5×MaxFrontier states the frontier is
	// cut to its 0.75×MaxFrontier most probable. Zero uses DefaultMaxFrontier.
	MaxFrontier int
	// Filter drops completed passwords for which it returns false. Dropped
	// passwords do not count towards n.
	Filter func(string) bool
}

// Stats describes the work done by a run so far.
type Stats struct {
	Expanded  int
	Pushed    int
	Evicted   int
	Shrinks   int
	Emitted   int
	HighWater int
}

// Generator is a single best-first run. It is not safe for concurrent use;
// start one per goroutine over a shared model.
type Generator struct {
	dist    Distribution
	n       int
	pMin    float64
	maxSize int
	keep    int
	filter  func(string) bool

	states  frontier
	seen    map[string]struct{}
	settled map[string]struct{}
	stats   Stats
}

// New prepares a run that emits at most n passwords.
func New(dist Distribution, n int, opts Options) *Generator {
	eps := opts.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	maxFrontier := opts.MaxFrontier
	if maxFrontier <= 0 {
		maxFrontier = DefaultMaxFrontier
	}
	g := &Generator{
		dist:    dist,
		n:       n,
		maxSize: maxFrontier * 3 / 2,
		keep:    maxFrontier * 3 / 4,
		filter:  opts.Filter,
		seen:    make(map[string]struct{}),
		settled: make(map[string]struct{}),
	}
	if n > 0 {
		g.pMin = eps / (float64(n) * float64(n))
		g.states = frontier{{s: alphabet.StartStr, p: 1}}
		g.seen[alphabet.StartStr] = struct{}{}
		g.stats.HighWater = 1
	}
	return g
}

// Next returns the next most probable password. ok is false once n
// passwords were emitted or the frontier is empty.
func (g *Generator) Next() (Guess, bool, error) {
	for g.stats.Emitted < g.n && g.states.Len() > 0 {
		cur := heap.Pop(&g.states).(state)
		if _, done := g.settled[cur.s]; done {
			continue
		}
		g.settled[cur.s] = struct{}{}

		if alphabet.IsComplete(cur.s) {
			pw := alphabet.Unwrap(cur.s)
			if g.filter != nil && !g.filter(pw) {
				continue
			}
			g.stats.Emitted++
			metrics.GuessesEmitted.Inc()
			return Guess{Password: pw, Prob: cur.p}, true, nil
		}

		if err := g.expand(cur); err != nil {
			return Guess{}, false, err
		}
		if g.states.Len() > g.maxSize {
			g.governor()
		}
	}
	return Guess{}, false, nil
}

func (g *Generator) expand(cur state) error {
	next, err := g.dist.NextCharDistribution(cur.s)
	if err != nil {
		return err
	}
	g.stats.Expanded++
	metrics.StatesExpanded.Inc()

	for _, nc := range next {
		p := cur.p * nc.Prob
		if p < g.pMin {
			continue
		}
		child := cur.s + string([]byte{nc.Char})
		if _, ok := g.seen[child]; ok {
			continue
		}
		if _, ok := g.settled[child]; ok {
			continue
		}
		g.seen[child] = struct{}{}
		heap.Push(&g.states, state{s: child, p: p})
		g.stats.Pushed++
	}
	if l := g.states.Len(); l > g.stats.HighWater {
		g.stats.HighWater = l
	}
	return nil
}

func (g *Generator) governor() {
	before := g.states.Len()
	evicted := g.states.shrink(g.keep)
	g.stats.Evicted += evicted
	g.stats.Shrinks++
	metrics.StatesEvicted.Add(float64(evicted))
	log.Infof("Frontier at %s states with %d of %d passwords emitted; truncated to %s",
		utils.FormatWithCommas(uint64(before)), g.stats.Emitted, g.n, utils.FormatWithCommas(uint64(g.keep)))
}

// Stats reports counters for this run.
func (g *Generator) Stats() Stats {
	return g.stats
}

// GenerateTopK runs a generator to completion and collects its output.
func GenerateTopK(dist Distribution, n int, filter func(string) bool, opts Options) ([]Guess, error) {
	if n <= 0 {
		return nil, nil
	}
	opts.Filter = filter
	g := New(dist, n, opts)
	out := make([]Guess, 0, min(n, 1024))
	for {
		guess, ok, err := g.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, guess)
	}
	s := g.Stats()
	log.Debugf("Generated %d passwords: %d expansions, %d pushes, %d evicted, frontier high-water %d",
		len(out), s.Expanded, s.Pushed, s.Evicted, s.HighWater)
	return out, nil
}
