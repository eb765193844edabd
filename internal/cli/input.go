// Package cli handles interactive password scoring for debugging models in
// real time.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/alphabet"
	"github.com/rchatterjee/pwmodels/pkg/generate"
)

// Scorer assigns a probability to a whole password.
type Scorer interface {
	Prob(pw string) (float64, error)
}

// Ranker returns the corpus frequency rank of a password.
type Ranker interface {
	RankOf(pw string) int
	Lookup(pw string) uint64
}

// InputHandler reads passwords line by line and prints what the loaded
// models think of them. Either backend may be nil.
//
// Lines starting with ":" are commands:
//
//	:top N   list the N most probable passwords under the model
//	:q       quit
type InputHandler struct {
	scorer       Scorer
	ranker       Ranker
	dist         generate.Distribution
	genOpts      generate.Options
	defaultLimit int
	requestCount int
}

// NewInputHandler wires the backends. dist may be nil to disable :top.
func NewInputHandler(scorer Scorer, ranker Ranker, dist generate.Distribution, genOpts generate.Options, limit int) *InputHandler {
	if limit < 1 {
		limit = 10
	}
	return &InputHandler{
		scorer:       scorer,
		ranker:       ranker,
		dist:         dist,
		genOpts:      genOpts,
		defaultLimit: limit,
	}
}

// Start runs the loop until in is exhausted or :q is entered.
func (h *InputHandler) Start(in io.Reader, out io.Writer) error {
	log.Print("pwmodel REPL")
	log.Print("type a password and press Enter to score it, :top N to enumerate, :q to exit")

	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			if line == ":q" {
				return nil
			}
			h.handleInput(line, out)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *InputHandler) handleInput(line string, out io.Writer) {
	h.requestCount++
	if strings.HasPrefix(line, ":top") {
		h.handleTop(strings.TrimSpace(strings.TrimPrefix(line, ":top")), out)
		return
	}

	start := time.Now()
	fmt.Fprintf(out, "%s\n", utils.Printable(line))
	fmt.Fprintf(out, "  shape:  %s\n", alphabet.Shape(line))
	if h.scorer != nil {
		p, err := h.scorer.Prob(line)
		if err != nil {
			log.Errorf("Scoring failed: %v", err)
		} else {
			fmt.Fprintf(out, "  prob:   %s\n", utils.FormatProb(p))
		}
	}
	if h.ranker != nil {
		fmt.Fprintf(out, "  rank:   %s (count %s)\n",
			utils.FormatWithCommas(uint64(h.ranker.RankOf(line))),
			utils.FormatWithCommas(h.ranker.Lookup(line)))
	}
	log.Debugf("Scored in %v", time.Since(start))
}

func (h *InputHandler) handleTop(arg string, out io.Writer) {
	if h.dist == nil {
		log.Errorf("No model loaded")
		return
	}
	n := h.defaultLimit
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 {
			log.Errorf("Invalid count: %q", arg)
			return
		}
		n = v
	}

	start := time.Now()
	guesses, err := generate.GenerateTopK(h.dist, n, nil, h.genOpts)
	if err != nil {
		log.Errorf("Generation failed: %v", err)
		return
	}
	for i, g := range guesses {
		fmt.Fprintf(out, "%4d. %-24s %s\n", i+1, utils.Printable(g.Password), utils.FormatProb(g.Prob))
	}
	log.Debugf("Generated %d in %v", len(guesses), time.Since(start))
}
