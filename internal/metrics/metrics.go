// Package metrics exposes orderbot's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters and histograms recorded by the router, the
// conversation engine and the order manager. All methods are safe on a nil
// receiver so callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	inbound        *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	commits        prometheus.Counter
	commitFailures *prometheus.CounterVec
	turnDuration   prometheus.Histogram
}

// New registers the instruments on a fresh registry under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "inbound_events_total",
			Help: "Inbound customer events by channel.",
		}, []string{"channel"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "duplicate_events_total",
			Help: "Redelivered events dropped by the dedup filter.",
		}, []string{"channel"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "step_transitions_total",
			Help: "Conversation step transitions.",
		}, []string{"from", "to"}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_committed_total",
			Help: "Orders committed.",
		}),
		commitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_commit_failures_total",
			Help: "Order commits that failed, by reason.",
		}, []string{"reason"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "turn_duration_seconds",
			Help:    "Time to process one inbound event.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.inbound, m.duplicates, m.transitions, m.commits, m.commitFailures, m.turnDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) InboundEvent(channel string) {
	if m != nil {
		m.inbound.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) DuplicateEvent(channel string) {
	if m != nil {
		m.duplicates.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) Transition(from, to string) {
	if m != nil {
		m.transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) OrderCommitted() {
	if m != nil {
		m.commits.Inc()
	}
}

// CommitFailed records a failed commit; reason is a short, low-cardinality tag.
func (m *Metrics) CommitFailed(reason string) {
	if m != nil {
		m.commitFailures.WithLabelValues(reason).Inc()
	}
}

// ObserveTurn records how long a turn took since start.
func (m *Metrics) ObserveTurn(start time.Time) {
	if m != nil {
		m.turnDuration.Observe(time.Since(start).Seconds())
	}
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
