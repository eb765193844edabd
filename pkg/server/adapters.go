package server

import (
	"fmt"
	"math/rand/v2"

	"github.com/rchatterjee/pwmodels/pkg/corpus"
	"github.com/rchatterjee/pwmodels/pkg/ngram"
)

type corpusSampler struct {
	c *corpus.Corpus
}

// CorpusSampler samples a corpus in a single pass.
func CorpusSampler(c *corpus.Corpus) Sampler {
	return corpusSampler{c: c}
}

func (s corpusSampler) Sample(n int, rng *rand.Rand, unique bool) ([]string, error) {
	return s.c.SampleFollowing(n, rng, unique)
}

type modelSampler struct {
	m *ngram.Model
}

// ModelSampler samples by random walks over an n-gram model. Unique mode
// retries until n distinct passwords are drawn or attempts run out.
func ModelSampler(m *ngram.Model) Sampler {
	return modelSampler{m: m}
}

func (s modelSampler) Sample(n int, rng *rand.Rand, unique bool) ([]string, error) {
	out := make([]string, 0, n)
	seen := make(map[string]struct{})
	for attempts := 0; len(out) < n; attempts++ {
		if attempts > 20*n {
			return out, fmt.Errorf("drew %d distinct passwords, wanted %d", len(out), n)
		}
		pw, err := s.m.SamplePassword(rng)
		if err != nil {
			return out, err
		}
		if unique {
			if _, dup := seen[pw]; dup {
				continue
			}
			seen[pw] = struct{}{}
		}
		out = append(out, pw)
	}
	return out, nil
}
