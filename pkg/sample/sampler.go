// Package sample draws items from a weighted stream in a single pass, without
// materialising the stream. Draws are uniform integers over the total weight,
// sorted, and merged against the running cumulative weight.
package sample

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/pkg/metrics"
)

var (
	// ErrInsufficientPopulation is returned when the integer population is
	// empty, or unique draws were asked for and n exceeds it.
	ErrInsufficientPopulation = errors.New("insufficient population")
	// ErrStreamExhausted is returned when the stream's weight falls short of
	// the declared total before every draw is matched.
	ErrStreamExhausted = errors.New("stream exhausted before all draws were matched")
)

// probabilityScale turns a stream of probabilities (total 1.0) into an
// integer population large enough to sample from.
const probabilityScale = 1e8

// Options configures a sampling run.
type Options struct {
	// Rand is the randomness source. Nil seeds a fresh PCG.
	Rand *rand.Rand
	// Unique draws n distinct integers, so an item's multiplicity is bounded
	// by its weight.
	Unique bool
}

// Draw is one sampled item. Point is the uniform integer drawn from
// [0, population); the item is the one whose cumulative weight interval
// contains it. Position is the item's zero-based index in the stream.
type Draw struct {
	Point    uint64
	Position int
	Item     string
}

// Following samples n items from stream with probability proportional to
// their weights. total must be the sum of the stream's weights. Draws are
// returned in stream order. On ErrStreamExhausted the draws matched so far
// are returned with the error.
func Following(stream iter.Seq2[string, float64], n int, total float64, opts Options) ([]Draw, error) {
	if n <= 0 {
		return nil, nil
	}
	if math.IsNaN(total) || total <= 0 {
		return nil, fmt.Errorf("%w: total weight %v", ErrInsufficientPopulation, total)
	}

	mult := 1.0
	if total == 1.0 {
		mult = probabilityScale
	}
	population := math.Floor(total * mult)
	if population < 1 || population > math.MaxUint64 {
		return nil, fmt.Errorf("%w: population %v", ErrInsufficientPopulation, population)
	}
	pop := uint64(population)
	if opts.Unique && uint64(n) > pop {
		return nil, fmt.Errorf("%w: %d unique draws from %d", ErrInsufficientPopulation, n, pop)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	points := drawPoints(rng, n, pop, opts.Unique)
	slices.Sort(points)

	draws := make([]Draw, 0, n)
	var cum float64
	i, pos := 0, 0
	for item, w := range stream {
		if i >= len(points) {
			break
		}
		if w > 0 {
			cum += w * mult
		}
		for i < len(points) && float64(points[i]) < cum {
			draws = append(draws, Draw{Point: points[i], Position: pos, Item: item})
			i++
		}
		pos++
	}
	metrics.SamplesDrawn.Add(float64(len(draws)))

	if i < len(points) {
		log.Warnf("Stream weight %v fell short of declared total %v; %d of %d draws unmatched", cum/mult, total, len(points)-i, n)
		return draws, fmt.Errorf("%w: %d of %d draws unmatched", ErrStreamExhausted, len(points)-i, n)
	}
	log.Debugf("Sampled %d items from population %d over %d stream items", len(draws), pop, pos)
	return draws, nil
}

// drawPoints returns n integers in [0, pop). In unique mode colliding draws
// are regenerated until n distinct values are held.
func drawPoints(rng *rand.Rand, n int, pop uint64, unique bool) []uint64 {
	points := make([]uint64, 0, n)
	if !unique {
		for range n {
			points = append(points, rng.Uint64N(pop))
		}
		return points
	}

	seen := make(map[uint64]struct{}, n)
	for missing := n; missing > 0; missing = n - len(seen) {
		for range missing {
			v := rng.Uint64N(pop)
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			points = append(points, v)
		}
	}
	return points
}

// Items strips positions from draws.
func Items(draws []Draw) []string {
	out := make([]string, len(draws))
	for i, d := range draws {
		out[i] = d.Item
	}
	return out
}

// Weights adapts a slice of (item, weight) pairs into a stream.
func Weights(items []string, weights []float64) iter.Seq2[string, float64] {
	return func(yield func(string, float64) bool) {
		for i, it := range items {
			if i >= len(weights) {
				return
			}
			if !yield(it, weights[i]) {
				return
			}
		}
	}
}
