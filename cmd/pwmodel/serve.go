package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/cli"
	"github.com/rchatterjee/pwmodels/pkg/config"
	"github.com/rchatterjee/pwmodels/pkg/generate"
	"github.com/rchatterjee/pwmodels/pkg/metrics"
	"github.com/rchatterjee/pwmodels/pkg/server"
	"github.com/spf13/cobra"
)

// backends loads every artifact named on the command line. The model scores
// when present; the corpus ranks and, when loaded, samples.
func (a *app) backends() (server.Backends, error) {
	var b server.Backends
	if a.modelPath == "" && a.corpusBase == "" {
		return b, errors.New("one of --model or --corpus is required")
	}
	if a.modelPath != "" {
		m, err := a.loadModel()
		if err != nil {
			return b, err
		}
		b.Scorer, b.Dist, b.Sampler = m, m, server.ModelSampler(m)
		log.Infof("Loaded order-%d model: %d tokens, %d passwords", m.Order(), m.NumTokens(), m.NumPasswords())
	}
	if a.corpusBase != "" {
		c, err := a.loadCorpus()
		if err != nil {
			return b, err
		}
		b.Ranker, b.Sampler = c, server.CorpusSampler(c)
		if b.Scorer == nil {
			b.Scorer = c
		}
		log.Infof("Loaded corpus: %d passwords, %d occurrences", c.Len(), c.Total())
	}
	return b, nil
}

func (a *app) newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer MessagePack requests on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backends()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				go func() {
					log.Infof("Serving metrics on %s/metrics", metricsAddr)
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						log.Errorf("Metrics listener stopped: %v", err)
					}
				}()
			}

			limits := server.Limits{
				MaxGenerate: a.cfg.Server.MaxGenerate,
				MaxSample:   a.cfg.Server.MaxSample,
				Generate: generate.Options{
					MaxFrontier: a.cfg.Generate.MaxFrontier,
					Epsilon:     a.cfg.Generate.Epsilon,
				},
			}
			return server.NewServer(b, limits, os.Stdin, os.Stdout).Start()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func (a *app) newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Score passwords interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backends()
			if err != nil {
				return err
			}
			var ranker cli.Ranker
			if r, ok := b.Ranker.(cli.Ranker); ok {
				ranker = r
			}
			opts := generate.Options{MaxFrontier: a.cfg.Generate.MaxFrontier, Epsilon: a.cfg.Generate.Epsilon}
			h := cli.NewInputHandler(b.Scorer, ranker, b.Dist, opts, 10)
			return h.Start(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) newConfigCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the active config, or rebuild the default file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rebuild {
				if err := config.RebuildConfigFile(); err != nil {
					return err
				}
				path, _ := config.GetDefaultConfigPath()
				fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %s\n", path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", config.GetActiveConfigPath(a.configPath))
			return config.Encode(cmd.OutOrStdout(), a.cfg)
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Overwrite the default config file with built-in defaults")
	return cmd
}
