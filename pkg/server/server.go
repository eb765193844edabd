package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/logger"
	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/generate"
	"github.com/rchatterjee/pwmodels/pkg/metrics"
	"github.com/vmihailenco/msgpack/v5"
)

// Backends are the loaded models. Any of them may be nil; actions that need
// a missing backend fail with an error response.
type Backends struct {
	Scorer  Scorer
	Dist    generate.Distribution
	Ranker  Ranker
	Sampler Sampler
}

// Limits cap a single request.
type Limits struct {
	MaxGenerate int
	MaxSample   int
	Generate    generate.Options
}

// Server handles IPC for password model queries
type Server struct {
	backends Backends
	limits   Limits
	reader   io.Reader
	writer   *bufio.Writer
	logger   *log.Logger
}

// NewServer creates a server reading requests from r and writing responses
// to w.
func NewServer(b Backends, limits Limits, r io.Reader, w io.Writer) *Server {
	return &Server{
		backends: b,
		limits:   limits,
		reader:   bufio.NewReader(r),
		writer:   bufio.NewWriter(w),
		logger:   logger.New("server"),
	}
}

// Start signals readiness and serves requests until the input ends.
func (s *Server) Start() error {
	s.logger.Debug("Starting Server.")
	dec := msgpack.NewDecoder(s.reader)
	enc := msgpack.NewEncoder(s.writer)

	if err := s.send(enc, Response{Status: StatusReady}); err != nil {
		return err
	}

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Errorf("Decoding request: %v", err)
			s.send(enc, Response{Status: StatusError, Error: "invalid msgpack request"})
			return fmt.Errorf("decoding request: %w", err)
		}
		if err := s.send(enc, s.Handle(req)); err != nil {
			return err
		}
	}
}

func (s *Server) send(enc *msgpack.Encoder, resp Response) error {
	if err := enc.Encode(resp); err != nil {
		s.logger.Errorf("Encoding response: %v", err)
		return err
	}
	return s.writer.Flush()
}

// Handle answers a single request.
func (s *Server) Handle(req Request) Response {
	start := time.Now()
	resp, err := s.dispatch(req)
	resp.ID = req.ID
	resp.TimeTaken = time.Since(start).Microseconds()
	if err != nil {
		resp.Status = StatusError
		resp.Error = err.Error()
		s.logger.Debugf("Request %s (%s) failed: %v", req.ID, req.Action, err)
	} else {
		resp.Status = StatusOK
	}
	metrics.Requests.WithLabelValues(req.Action, resp.Status).Inc()
	return resp
}

func (s *Server) dispatch(req Request) (Response, error) {
	switch req.Action {
	case ActionHealth:
		return Response{}, nil
	case ActionProb:
		return s.handleProb(req)
	case ActionRank:
		return s.handleRank(req)
	case ActionGenerate:
		return s.handleGenerate(req)
	case ActionSample:
		return s.handleSample(req)
	default:
		return Response{}, fmt.Errorf("unknown action: %q", req.Action)
	}
}

func (s *Server) handleProb(req Request) (Response, error) {
	if s.backends.Scorer == nil {
		return Response{}, errors.New("no model loaded")
	}
	if len(req.Passwords) == 0 {
		return Response{}, errors.New("missing 'pws' parameter")
	}
	probs := make([]float64, len(req.Passwords))
	for i, pw := range req.Passwords {
		p, err := s.backends.Scorer.Prob(pw)
		if err != nil {
			return Response{}, fmt.Errorf("scoring %q: %w", utils.Printable(pw), err)
		}
		probs[i] = p
	}
	return Response{Probs: probs, Count: len(probs)}, nil
}

func (s *Server) handleRank(req Request) (Response, error) {
	if s.backends.Ranker == nil {
		return Response{}, errors.New("no corpus loaded")
	}
	if len(req.Passwords) == 0 {
		return Response{}, errors.New("missing 'pws' parameter")
	}
	ranks := s.backends.Ranker.GuessRanks(req.Passwords)
	return Response{Ranks: ranks, Count: len(ranks)}, nil
}

func (s *Server) handleGenerate(req Request) (Response, error) {
	if s.backends.Dist == nil {
		return Response{}, errors.New("no model loaded")
	}
	if req.Limit < 1 {
		return Response{}, errors.New("'l' must be at least 1")
	}
	if s.limits.MaxGenerate > 0 && req.Limit > s.limits.MaxGenerate {
		return Response{}, fmt.Errorf("'l' exceeds maximum of %d", s.limits.MaxGenerate)
	}
	filter := utils.PolicyFilter(req.MinLen, req.MaxLen, true, true)
	guesses, err := generate.GenerateTopK(s.backends.Dist, req.Limit, filter, s.limits.Generate)
	if err != nil {
		return Response{}, err
	}
	return Response{Guesses: guesses, Count: len(guesses)}, nil
}

func (s *Server) handleSample(req Request) (Response, error) {
	if s.backends.Sampler == nil {
		return Response{}, errors.New("nothing to sample from")
	}
	if req.Limit < 1 {
		return Response{}, errors.New("'l' must be at least 1")
	}
	if s.limits.MaxSample > 0 && req.Limit > s.limits.MaxSample {
		return Response{}, fmt.Errorf("'l' exceeds maximum of %d", s.limits.MaxSample)
	}
	seed := req.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	samples, err := s.backends.Sampler.Sample(req.Limit, rng, req.Unique)
	if err != nil {
		return Response{}, err
	}
	return Response{Samples: samples, Count: len(samples)}, nil
}
