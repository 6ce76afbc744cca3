// Package metrics holds the Prometheus collectors for an extraction run.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "genqa"

// Metrics is a private registry with the run's collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	documents *prometheus.CounterVec
	chunks    *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	latency   prometheus.Histogram
	qaPairs   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents handled, by outcome.",
		}, []string{"outcome"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks finished, by state and skip reason.",
		}, []string{"state", "reason"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Generation attempts, by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one generation call.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}),
		qaPairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qa_pairs_total",
			Help:      "Accepted question-answer pairs.",
		}),
	}
	m.registry.MustRegister(
		m.documents, m.chunks, m.attempts, m.latency, m.qaPairs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Document(outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(outcome).Inc()
}

// Chunk counts a finished chunk. reason is empty for accepted chunks.
func (m *Metrics) Chunk(state, reason string, pairs int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(state, reason).Inc()
	m.qaPairs.Add(float64(pairs))
}

func (m *Metrics) Attempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
	m.latency.Observe(d.Seconds())
}
