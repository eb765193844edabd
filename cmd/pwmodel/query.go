package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"

	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/corpus"
	"github.com/rchatterjee/pwmodels/pkg/generate"
	"github.com/rchatterjee/pwmodels/pkg/ngram"
	"github.com/rchatterjee/pwmodels/pkg/server"
	"github.com/spf13/cobra"
)

// isExplicitPath reports names that bypass the data dir.
func isExplicitPath(name string) bool {
	return filepath.IsAbs(name) || strings.HasPrefix(name, "./") || strings.HasPrefix(name, "~")
}

func (a *app) loadModel() (*ngram.Model, error) {
	if a.modelPath == "" {
		return nil, errors.New("--model is required")
	}
	return ngram.Load(a.artifact(a.modelPath), a.cfg.Model.CacheSize)
}

func (a *app) loadCorpus() (*corpus.Corpus, error) {
	if a.corpusBase == "" {
		return nil, errors.New("--corpus is required")
	}
	return corpus.Load(a.artifact(a.corpusBase))
}

// scorer prefers the n-gram model and falls back to the corpus histogram.
func (a *app) scorer() (server.Scorer, error) {
	if a.modelPath != "" {
		return a.loadModel()
	}
	if a.corpusBase != "" {
		return a.loadCorpus()
	}
	return nil, errors.New("one of --model or --corpus is required")
}

func (a *app) newProbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prob <password>...",
		Short: "Estimate the probability of passwords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.scorer()
			if err != nil {
				return err
			}
			for _, pw := range args {
				p, err := s.Prob(pw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", pw, utils.FormatProb(p))
			}
			return nil
		},
	}
}

func (a *app) newRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank <password>...",
		Short: "Show the frequency rank of passwords in a corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadCorpus()
			if err != nil {
				return err
			}
			for i, r := range c.GuessRanks(args) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%d\n", args[i], r, c.Lookup(args[i]))
			}
			return nil
		},
	}
}

func (a *app) generateOptions(cmd *cobra.Command, maxFrontier int, eps float64) generate.Options {
	opts := generate.Options{MaxFrontier: a.cfg.Generate.MaxFrontier, Epsilon: a.cfg.Generate.Epsilon}
	if cmd.Flags().Changed("max-frontier") {
		opts.MaxFrontier = maxFrontier
	}
	if cmd.Flags().Changed("epsilon") {
		opts.Epsilon = eps
	}
	return opts
}

func (a *app) newGenerateCmd() *cobra.Command {
	var n, minLen, maxLen, maxFrontier int
	var eps float64
	var noNumeric, noRepetitive bool
	var match string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Enumerate the most probable passwords under an n-gram model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadModel()
			if err != nil {
				return err
			}
			gc := a.cfg.Generate
			if !cmd.Flags().Changed("num") {
				n = gc.Limit
			}
			if !cmd.Flags().Changed("min-len") {
				minLen = gc.MinLen
			}
			if !cmd.Flags().Changed("max-len") {
				maxLen = gc.MaxLen
			}
			filter := utils.PolicyFilter(minLen, maxLen,
				gc.AllowNumeric && !noNumeric, gc.AllowRepetitive && !noRepetitive)
			if match != "" {
				matching, err := utils.Matching(match)
				if err != nil {
					return fmt.Errorf("invalid --match pattern: %w", err)
				}
				filter = utils.All(filter, matching)
			}

			opts := a.generateOptions(cmd, maxFrontier, eps)
			opts.Filter = filter
			g := generate.New(m, n, opts)
			for {
				guess, ok, err := g.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.6e\n", guess.Password, guess.Prob)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&n, "num", "n", 1000, "Number of passwords to generate")
	f.IntVar(&minLen, "min-len", 0, "Skip passwords shorter than this")
	f.IntVar(&maxLen, "max-len", 0, "Skip passwords longer than this (0 for no limit)")
	f.IntVar(&maxFrontier, "max-frontier", generate.DefaultMaxFrontier, "Frontier size the search shrinks back towards")
	f.Float64Var(&eps, "epsilon", generate.DefaultEpsilon, "Probability floor is epsilon/n^2")
	f.BoolVar(&noNumeric, "no-numeric", false, "Skip all-digit passwords")
	f.BoolVar(&noRepetitive, "no-repetitive", false, "Skip single-character repeats like aaaa")
	f.StringVar(&match, "match", "", "Only emit passwords matching this regular expression")
	return cmd
}

func (a *app) newSampleCmd() *cobra.Command {
	var n int
	var seed uint64
	var unique bool

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Draw passwords from a corpus, or from a model when no corpus is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				seed = a.cfg.Sample.Seed
			}
			if !cmd.Flags().Changed("unique") {
				unique = a.cfg.Sample.Unique
			}

			var sampler server.Sampler
			switch {
			case a.corpusBase != "":
				c, err := a.loadCorpus()
				if err != nil {
					return err
				}
				sampler = server.CorpusSampler(c)
			case a.modelPath != "":
				m, err := a.loadModel()
				if err != nil {
					return err
				}
				sampler = server.ModelSampler(m)
			default:
				return errors.New("one of --corpus or --model is required")
			}

			pws, err := sampler.Sample(n, newRand(seed), unique)
			for _, pw := range pws {
				fmt.Fprintln(cmd.OutOrStdout(), pw)
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&n, "num", "n", 10, "Number of passwords to draw")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 for a random one)")
	cmd.Flags().BoolVar(&unique, "unique", false, "Never draw the same occurrence twice")
	return cmd
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}
