/*
Package server implements msgpack IPC for password model queries.

The server reads a stream of msgpack-encoded requests from stdin and writes
one msgpack-encoded response per request to stdout. Logs go to stderr so the
stream stays clean. Requests are handled synchronously in arrival order.

# IPC

Every request names an action and carries an ID that is echoed back:

	{"id": "q1", "action": "prob", "pws": ["password", "123456"]}
	{"id": "q2", "action": "rank", "pws": ["password"]}
	{"id": "q3", "action": "generate", "l": 10, "min": 6}
	{"id": "q4", "action": "sample", "l": 5, "seed": 7, "u": true}
	{"id": "q5", "action": "health"}

Responses carry a status, the payload for the action, and the handling time
in microseconds:

	{"id": "q1", "status": "ok", "probs": [0.61, 0.31], "c": 2, "t": 12}

A failed request gets status "error" and an error message; the stream keeps
going. A request that cannot be decoded ends the session since the stream
position is lost.

# Actions

prob scores each password with the loaded Scorer: the n-gram model when one
is loaded, otherwise the corpus histogram.

rank returns the 1-based frequency rank of each password in the corpus.

generate enumerates the most probable passwords under the n-gram model.

sample draws passwords: from the corpus in one pass when a corpus is loaded,
otherwise by random walks over the model.
*/
package server

import (
	"math/rand/v2"

	"github.com/rchatterjee/pwmodels/pkg/generate"
)

// Actions understood by the server.
const (
	ActionProb     = "prob"
	ActionRank     = "rank"
	ActionGenerate = "generate"
	ActionSample   = "sample"
	ActionHealth   = "health"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusReady = "ready"
)

// Request is one query.
type Request struct {
	ID        string   `msgpack:"id"`
	Action    string   `msgpack:"action"`
	Passwords []string `msgpack:"pws,omitempty"`
	Limit     int      `msgpack:"l,omitempty"`
	MinLen    int      `msgpack:"min,omitempty"`
	MaxLen    int      `msgpack:"max,omitempty"`
	Seed      uint64   `msgpack:"seed,omitempty"`
	Unique    bool     `msgpack:"u,omitempty"`
}

// Response answers one Request.
type Response struct {
	ID        string           `msgpack:"id"`
	Status    string           `msgpack:"status"`
	Error     string           `msgpack:"error,omitempty"`
	Probs     []float64        `msgpack:"probs,omitempty"`
	Ranks     []int            `msgpack:"ranks,omitempty"`
	Guesses   []generate.Guess `msgpack:"guesses,omitempty"`
	Samples   []string         `msgpack:"samples,omitempty"`
	Count     int              `msgpack:"c"`
	TimeTaken int64            `msgpack:"t"`
}

// Scorer assigns a probability to a whole password. *ngram.Model and
// *corpus.Corpus both implement it.
type Scorer interface {
	Prob(pw string) (float64, error)
}

// Ranker ranks passwords by corpus frequency. *corpus.Corpus implements it.
type Ranker interface {
	GuessRanks(pws []string) []int
}

// Sampler draws n passwords.
type Sampler interface {
	Sample(n int, rng *rand.Rand, unique bool) ([]string, error)
}
