// Package metrics holds the Prometheus counters exported by the ingestion,
// training and search paths. Everything is registered on Registry rather than
// the global default so embedding applications decide what to expose.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pwmodels"

// Registry collects every metric in this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// RecordsRead counts leak records accepted by the reader.
	RecordsRead = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leak",
		Name:      "records_read_total",
		Help:      "Leak file records parsed successfully.",
	})

	// RecordsMalformed counts lines skipped because they did not parse.
	RecordsMalformed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leak",
		Name:      "records_malformed_total",
		Help:      "Leak file lines skipped as malformed.",
	})

	// CorpusBuilds counts completed corpus constructions.
	CorpusBuilds = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "corpus",
		Name:      "builds_total",
		Help:      "Frequency corpora built.",
	})

	// PasswordsTrained counts passwords folded into n-gram tables.
	PasswordsTrained = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ngram",
		Name:      "passwords_trained_total",
		Help:      "Passwords accepted by the n-gram trainer.",
	})

	// PasswordsFiltered counts passwords rejected by the trainer's filters.
	PasswordsFiltered = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ngram",
		Name:      "passwords_filtered_total",
		Help:      "Passwords rejected by the n-gram trainer.",
	})

	// ContextCache counts distribution cache lookups by result.
	ContextCache = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ngram",
		Name:      "context_cache_total",
		Help:      "Next-character distribution cache lookups.",
	}, []string{"result"})

	// StatesExpanded counts frontier states expanded by the generator.
	StatesExpanded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generate",
		Name:      "states_expanded_total",
		Help:      "Partial passwords expanded by best-first search.",
	})

	// StatesEvicted counts frontier states dropped by the size governor.
	StatesEvicted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generate",
		Name:      "states_evicted_total",
		Help:      "Partial passwords evicted when the frontier was shrunk.",
	})

	// GuessesEmitted counts passwords produced by the generator.
	GuessesEmitted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generate",
		Name:      "guesses_emitted_total",
		Help:      "Passwords emitted by best-first search.",
	})

	// SamplesDrawn counts items returned by the weighted sampler.
	SamplesDrawn = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sample",
		Name:      "draws_total",
		Help:      "Items drawn by one-pass weighted sampling.",
	})

	// Requests counts IPC requests by action and outcome.
	Requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "IPC requests handled, by action and status.",
	}, []string{"action", "status"})
)

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
