package ngram

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/rchatterjee/pwmodels/pkg/alphabet"
	"github.com/rchatterjee/pwmodels/pkg/metrics"
	"github.com/tchap/go-patricia/v2/patricia"
)

// maxSampleLen caps random walks on models whose END mass is tiny.
const maxSampleLen = 256

// smoothing is the add-one denominator term: one pseudo-count for every
// character that could follow a history.
const smoothing = uint64(alphabet.Size - 1)

// ConditionalProb estimates P(next | history). The history is truncated to
// its last n-1 bytes and shortened from the left until it has been seen; the
// empty history counts the whole unigram mass.
func (m *Model) ConditionalProb(history string, next byte) (float64, error) {
	if m.unigram == 0 {
		return 0, ErrDegenerateModel
	}
	if history == "" && next == alphabet.Start {
		return 1, nil
	}

	h := tail(history, m.order-1)
	d := m.unigram
	for h != "" {
		if c := m.Count(h); c > 0 {
			d = c
			break
		}
		h = h[1:]
	}
	c := m.Count(h + string([]byte{next}))
	return float64(c+1) / float64(d+smoothing), nil
}

// WholeStringProb estimates the probability of a complete password. Verbatim
// entries are used when one prefixes the wrapped string; otherwise bytes are
// consumed one at a time through ConditionalProb. The estimate is not
// normalised over all strings.
func (m *Model) WholeStringProb(s string) (float64, error) {
	if m.unigram == 0 {
		return 0, ErrDegenerateModel
	}
	rest := alphabet.Wrap(s)
	given := ""
	p := 1.0
	for rest != "" {
		if pre, c := m.longestVerbatim(rest); pre != "" {
			p *= float64(c) / float64(m.totalf)
			given = tail(pre, m.order)
			rest = rest[len(pre):]
			continue
		}
		cp, err := m.ConditionalProb(given, rest[0])
		if err != nil {
			return 0, err
		}
		p *= cp
		given = tail(given+rest[:1], m.order)
		rest = rest[1:]
	}
	return p, nil
}

// Prob is WholeStringProb.
func (m *Model) Prob(s string) (float64, error) {
	return m.WholeStringProb(s)
}

// longestVerbatim finds the longest stored entry longer than n that
// prefixes s.
func (m *Model) longestVerbatim(s string) (string, uint64) {
	if m.verbatim == 0 {
		return "", 0
	}
	var best string
	var count uint64
	m.trie.VisitPrefixes(patricia.Prefix(s), func(p patricia.Prefix, item patricia.Item) error {
		if len(p) > m.order {
			best, count = string(p), item.(uint64)
		}
		return nil
	})
	return best, count
}

// NextCharDistribution returns the smoothed distribution over the observed
// single-byte continuations of history, sorted by byte. The context backs
// off from the left until it has continuations. The probabilities sum to 1.
func (m *Model) NextCharDistribution(history string) ([]NextChar, error) {
	if m.unigram == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoCoverage, ErrDegenerateModel)
	}
	if history == "" {
		return []NextChar{{Char: alphabet.Start, Prob: 1}}, nil
	}

	ctx := tail(history, m.order-1)
	if dist, ok := m.cache.Get(ctx); ok {
		metrics.ContextCache.WithLabelValues("hit").Inc()
		return dist, nil
	}
	metrics.ContextCache.WithLabelValues("miss").Inc()

	h := ctx
	var next []tokenCount
	for h != "" {
		if m.Count(h) > 0 {
			if next = m.continuations(h); len(next) > 0 {
				break
			}
		}
		h = h[1:]
	}
	if h == "" {
		next = m.initial
	}
	if len(next) == 0 {
		return nil, fmt.Errorf("%w: context %q", ErrNoCoverage, history)
	}

	var sum uint64
	for _, tc := range next {
		sum += tc.count
	}
	denom := float64(sum + uint64(len(next)))
	dist := make([]NextChar, len(next))
	for i, tc := range next {
		dist[i] = NextChar{Char: tc.char, Prob: float64(tc.count+1) / denom}
	}
	m.cache.Add(ctx, dist)
	return dist, nil
}

// continuations lists the single-byte extensions of h that were counted.
func (m *Model) continuations(h string) []tokenCount {
	var out []tokenCount
	want := len(h) + 1
	m.trie.VisitSubtree(patricia.Prefix(h), func(p patricia.Prefix, item patricia.Item) error {
		switch {
		case len(p) < want:
			return nil
		case len(p) == want:
			if p[len(p)-1] != alphabet.Start {
				out = append(out, tokenCount{char: p[len(p)-1], count: item.(uint64)})
			}
		}
		return patricia.SkipSubtree
	})
	sortTokenCounts(out)
	return out
}

func sortTokenCounts(tcs []tokenCount) {
	slices.SortFunc(tcs, func(a, b tokenCount) int {
		return cmp.Compare(a.char, b.char)
	})
}

// SamplePassword draws one password by a random walk over
// NextCharDistribution.
func (m *Model) SamplePassword(rng *rand.Rand) (string, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s := alphabet.StartStr
	for !alphabet.IsComplete(s) {
		if len(s) > maxSampleLen {
			return "", fmt.Errorf("sampled password exceeded %d bytes", maxSampleLen)
		}
		dist, err := m.NextCharDistribution(s)
		if err != nil {
			return "", err
		}
		s += string([]byte{pick(dist, rng.Float64())})
	}
	return alphabet.Unwrap(s), nil
}

func pick(dist []NextChar, u float64) byte {
	var cum float64
	for _, nc := range dist {
		cum += nc.Prob
		if u < cum {
			return nc.Char
		}
	}
	return dist[len(dist)-1].Char
}
