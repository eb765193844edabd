// Package ngram implements a character n-gram password model. Passwords are
// wrapped in START/END sentinels and every window of length 1..n is counted,
// weighted by the password's frequency. Conditional probabilities use add-one
// smoothing with backoff to shorter histories. Optionally the most frequent
// passwords are also stored whole ("verbatim") so that popular passwords are
// not underestimated.
package ngram

import (
	"errors"
	"iter"
	"strings"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rchatterjee/pwmodels/pkg/alphabet"
	"github.com/tchap/go-patricia/v2/patricia"
)

var (
	// ErrDegenerateModel is returned when a query hits a model trained on no
	// data.
	ErrDegenerateModel = errors.New("degenerate model: no training data")
	// ErrNoCoverage is returned when no continuation is reachable even from
	// the empty context.
	ErrNoCoverage = errors.New("no continuation reachable from any context")
	// ErrPersistenceMismatch is returned when a saved model is inconsistent.
	ErrPersistenceMismatch = errors.New("ngram persistence mismatch")

	errStop = errors.New("stop")
)

// Meta keys persisted next to ordinary tokens. The leading Reserved byte
// keeps them out of the token space of any trainable password.
var (
	KeyNumPasswords = string(alphabet.Reserved) + "__NPWS__"
	KeyTotalFreq    = string(alphabet.Reserved) + "__TOTALF__"
)

// DefaultCacheSize bounds the per-model distribution cache.
const DefaultCacheSize = 100000

// NextChar is one continuation of a context with its probability.
type NextChar struct {
	Char byte
	Prob float64
}

type tokenCount struct {
	char  byte
	count uint64
}

// Model is an immutable trained n-gram model. All methods are safe for
// concurrent use.
type Model struct {
	order    int
	trie     *patricia.Trie
	npws     uint64
	totalf   uint64
	unigram  uint64
	tokens   int
	verbatim int
	initial  []tokenCount

	cache *lru.Cache[string, []NextChar]
}

// newModel indexes counted tokens. counts must not contain meta keys.
func newModel(order int, counts map[string]uint64, npws, totalf uint64, cacheSize int) (*Model, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []NextChar](cacheSize)
	if err != nil {
		return nil, err
	}

	m := &Model{
		order:  order,
		trie:   patricia.NewTrie(),
		npws:   npws,
		totalf: totalf,
		cache:  cache,
	}
	for tok, c := range counts {
		if tok == "" || c == 0 {
			continue
		}
		m.trie.Insert(patricia.Prefix(tok), c)
		m.tokens++
		switch {
		case len(tok) == 1:
			m.unigram += c
			if tok[0] != alphabet.Start {
				m.initial = append(m.initial, tokenCount{char: tok[0], count: c})
			}
		case len(tok) > order:
			m.verbatim++
		}
	}
	sortTokenCounts(m.initial)

	log.Debugf("Indexed %d-gram model: %d tokens, %d verbatim, unigram mass %d", order, m.tokens, m.verbatim, m.unigram)
	return m, nil
}

// Order is n.
func (m *Model) Order() int {
	return m.order
}

// NumPasswords is the number of password records folded into the model,
// verbatim entries included.
func (m *Model) NumPasswords() uint64 {
	return m.npws
}

// TotalFreq is the total frequency mass trained, verbatim entries included.
func (m *Model) TotalFreq() uint64 {
	return m.totalf
}

// NumTokens is the number of distinct stored tokens, excluding meta keys.
func (m *Model) NumTokens() int {
	return m.tokens
}

// NumVerbatim is the number of whole passwords stored verbatim.
func (m *Model) NumVerbatim() int {
	return m.verbatim
}

// Count returns the stored count for token. The meta keys report the
// password count and total frequency.
func (m *Model) Count(token string) uint64 {
	switch token {
	case "":
		return m.unigram
	case KeyNumPasswords:
		return m.npws
	case KeyTotalFreq:
		return m.totalf
	}
	item := m.trie.Get(patricia.Prefix(token))
	if item == nil {
		return 0
	}
	return item.(uint64)
}

// Tokens yields every stored token and its count. Meta keys are not
// included.
func (m *Model) Tokens() iter.Seq2[string, uint64] {
	return func(yield func(string, uint64) bool) {
		m.trie.Visit(func(p patricia.Prefix, item patricia.Item) error {
			if !yield(string(p), item.(uint64)) {
				return errStop
			}
			return nil
		})
	}
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func isVerbatimKey(tok string, order int) bool {
	return len(tok) > order && strings.HasPrefix(tok, alphabet.StartStr) && alphabet.IsComplete(tok)
}
