package main

import (
	"fmt"
	"iter"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/alphabet"
	"github.com/rchatterjee/pwmodels/pkg/corpus"
	"github.com/rchatterjee/pwmodels/pkg/leak"
	"github.com/rchatterjee/pwmodels/pkg/ngram"
	"github.com/spf13/cobra"
)

// readFlags are the leak-parsing flags shared by build and train.
type readFlags struct {
	sep       string
	limit     int
	minLength int
}

func (f *readFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sep, "sep", "", "Separator between count and password (default: whitespace)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Read at most this many records (0 for all)")
	cmd.Flags().IntVar(&f.minLength, "min-length", 0, "Drop passwords with fewer valid characters")
}

func (f *readFlags) options(cmd *cobra.Command, a *app) leak.Options {
	opts := leak.Options{Separator: f.sep, Limit: f.limit}
	if !cmd.Flags().Changed("sep") {
		opts.Separator = a.cfg.Corpus.Separator
	}
	if !cmd.Flags().Changed("limit") {
		opts.Limit = a.cfg.Corpus.Limit
	}
	if minLen := f.minLength; minLen > 0 {
		opts.Filter = func(pw string) bool { return alphabet.ValidLength(pw) >= minLen }
	}
	return opts
}

func (a *app) newBuildCmd() *cobra.Command {
	var rf readFlags
	var out string

	cmd := &cobra.Command{
		Use:   "build <leak-file>",
		Short: "Build and save a frequency corpus from a leak file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := a.artifact(out)
			c, stats, err := corpus.BuildFromFile(args[0], rf.options(cmd, a), corpus.Options{PersistTo: base})
			if err != nil {
				return err
			}
			log.Infof("Read %s lines: %s accepted, %d malformed, %d filtered",
				utils.FormatWithCommas(uint64(stats.Lines)), utils.FormatWithCommas(uint64(stats.Accepted)), stats.Malformed, stats.Filtered)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d passwords\t%d occurrences\n", base, c.Len(), c.Total())
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Base path for the saved corpus")
	cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) newTrainCmd() *cobra.Command {
	var rf readFlags
	var out string
	var order, topK, shards int

	cmd := &cobra.Command{
		Use:   "train <leak-file>...",
		Short: "Train and save an n-gram model; several files are trained as parallel shards",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ngram.Options{
				Order:     a.cfg.Model.Order,
				MinLength: a.cfg.Model.MinLength,
				TopK:      a.cfg.Model.TopK,
				CacheSize: a.cfg.Model.CacheSize,
			}
			if cmd.Flags().Changed("order") {
				opts.Order = order
			}
			if cmd.Flags().Changed("min-length") {
				opts.MinLength = rf.minLength
			}
			if cmd.Flags().Changed("top-k") {
				opts.TopK = topK
			}
			if !cmd.Flags().Changed("shards") {
				shards = a.cfg.Model.Shards
			}
			readOpts := rf.options(cmd, a)
			readOpts.Filter = nil

			m, err := trainFiles(cmd, args, readOpts, opts, shards)
			if err != nil {
				return err
			}
			path := a.artifact(out)
			if err := m.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\torder %d\t%d tokens\t%d passwords\n", path, m.Order(), m.NumTokens(), m.NumPasswords())
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Path for the saved model")
	cmd.Flags().IntVar(&order, "order", 3, "n-gram order")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Store this many most frequent passwords verbatim")
	cmd.Flags().IntVar(&shards, "shards", 1, "Split a single input into this many parallel shards")
	cmd.MarkFlagRequired("out")
	return cmd
}

// trainFiles trains serially on a single file, or in parallel with one shard
// per file. A single file with shards > 1 is read into memory and split
// round-robin.
func trainFiles(cmd *cobra.Command, paths []string, readOpts leak.Options, opts ngram.Options, shards int) (*ngram.Model, error) {
	if len(paths) == 1 && shards <= 1 {
		rc, err := leak.Open(paths[0])
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		r := leak.NewReader(rc, readOpts)
		m, err := ngram.Train(r.Entries(), opts)
		if err != nil {
			return nil, err
		}
		return m, r.Err()
	}

	if len(paths) == 1 {
		entries, _, err := leak.ReadFile(paths[0], readOpts)
		if err != nil {
			return nil, err
		}
		return ngram.TrainShards(cmd.Context(), splitRoundRobin(entries, shards), opts)
	}

	errs := make([]error, len(paths))
	seqs := make([]iter.Seq[leak.Entry], len(paths))
	for i, path := range paths {
		seqs[i] = fileShard(path, readOpts, &errs[i])
	}
	m, err := ngram.TrainShards(cmd.Context(), seqs, opts)
	if err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// fileShard streams one leak file. Open and read errors land in errp.
func fileShard(path string, readOpts leak.Options, errp *error) iter.Seq[leak.Entry] {
	return func(yield func(leak.Entry) bool) {
		rc, err := leak.Open(path)
		if err != nil {
			*errp = err
			return
		}
		defer rc.Close()
		r := leak.NewReader(rc, readOpts)
		for e := range r.Entries() {
			if !yield(e) {
				break
			}
		}
		*errp = r.Err()
	}
}

func splitRoundRobin(entries []leak.Entry, n int) []iter.Seq[leak.Entry] {
	parts := make([][]leak.Entry, n)
	for i, e := range entries {
		parts[i%n] = append(parts[i%n], e)
	}
	seqs := make([]iter.Seq[leak.Entry], n)
	for i, p := range parts {
		seqs[i] = leak.Slice(p)
	}
	return seqs
}

// artifact resolves a relative artifact name against the configured data
// dir, falling back to $PWMODEL_HOME.
func (a *app) artifact(name string) string {
	if dir := a.cfg.Corpus.DataDir; dir != "" && !isExplicitPath(name) {
		return filepath.Join(utils.ExpandHome(dir), name)
	}
	return utils.ResolveArtifact(name)
}
