// Copyright 2025 The pwmodels Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the pwmodel command: build frequency corpora and
n-gram models from password leaks, then query them from the shell, an
interactive REPL, or a MessagePack IPC server.

# Usage

Build a frequency corpus from a `uniq -c` style leak (gzip, bzip2 and zstd
are detected automatically):

	pwmodel build rockyou-withcount.txt.gz --out rockyou

Train a 4-gram model, storing the 1000 most popular passwords verbatim:

	pwmodel train rockyou-withcount.txt.gz --out rockyou-4g.gz --order 4 --top-k 1000

Query the artifacts:

	pwmodel prob --model rockyou-4g.gz password 123456
	pwmodel rank --corpus rockyou password
	pwmodel generate --model rockyou-4g.gz -n 20 --min-len 8
	pwmodel sample --corpus rockyou -n 10 --seed 7

Relative artifact names resolve against $PWMODEL_HOME, or ~/.pwmodel when it
is unset. Paths starting with ./ or / are used as given.

# Configuration

Defaults come from a TOML file created on first run at
~/.config/pwmodel/config.toml:

	[model]
	order = 3
	min_length = 6
	top_k = 0

	[generate]
	limit = 1000
	max_frontier = 1000000
	epsilon = 1e-9

Flags override the file.

# Server Mode

`pwmodel serve` loads whatever artifacts are given and answers MessagePack
requests on stdin with responses on stdout. See package server for the
protocol. Logs always go to stderr.
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/logger"
	"github.com/rchatterjee/pwmodels/pkg/config"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
	AppName = "pwmodel"
	gh      = "https://github.com/rchatterjee/pwmodels"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	debug      bool
	corpusBase string
	modelPath  string

	cfg *config.Config
}

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

func main() {
	sigHandler()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Password probability models built from leaked password corpora",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(a.debug)
			cfg, path, err := config.LoadConfigWithPriority(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config %s: %w", config.GetActiveConfigPath(path), err)
			}
			a.cfg = cfg
			log.Debugf("Using config: %s", config.GetActiveConfigPath(path))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to a TOML config file")
	pf.BoolVarP(&a.debug, "debug", "d", false, "Toggle debug logging")
	pf.StringVar(&a.corpusBase, "corpus", "", "Base path of a saved corpus")
	pf.StringVar(&a.modelPath, "model", "", "Path of a saved n-gram model")

	root.AddCommand(
		a.newBuildCmd(),
		a.newTrainCmd(),
		a.newProbCmd(),
		a.newRankCmd(),
		a.newGenerateCmd(),
		a.newSampleCmd(),
		a.newServeCmd(),
		a.newReplCmd(),
		a.newConfigCmd(),
		newVersionCmd(),
	)
	return root
}
