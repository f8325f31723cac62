// Package metrics exposes Prometheus instrumentation for triage fetches.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remotetriage/internal/triage"
)

const namespace = "remotetriage"

// Outcome label values for fetch metrics
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics owns a private registry so tests and the server never collide with
// the global default one.
type Metrics struct {
	registry *prometheus.Registry

	fetches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	stale    prometheus.Counter
	inflight prometheus.Gauge
	sessions prometheus.Gauge
	exports  *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Completed triage read calls by outcome and HTTP status.",
		}, []string{"outcome", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of triage read calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Responses discarded because a newer lookup superseded them.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetches_in_flight",
			Help:      "Read calls currently waiting on the backend.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Triage sessions held by the server.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Config dump exports by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.fetches, m.duration, m.stale, m.inflight, m.sessions, m.exports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// FetchStarted implements triage.Observer
func (m *Metrics) FetchStarted(string) {
	m.inflight.Inc()
}

// FetchFinished implements triage.Observer
func (m *Metrics) FetchFinished(_ string, elapsed time.Duration, err error) {
	m.inflight.Dec()
	outcome, status := classify(err)
	m.fetches.WithLabelValues(outcome, status).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// StaleDropped implements triage.Observer
func (m *Metrics) StaleDropped(string) {
	m.inflight.Dec()
	m.stale.Inc()
}

// FetchCancelled implements triage.Observer
func (m *Metrics) FetchCancelled(string) {
	m.inflight.Dec()
}

// SessionOpened tracks a server session being created
func (m *Metrics) SessionOpened() { m.sessions.Inc() }

// SessionClosed tracks a server session being evicted
func (m *Metrics) SessionClosed() { m.sessions.Dec() }

// ExportDone records an export attempt
func (m *Metrics) ExportDone(err error) {
	outcome, _ := classify(err)
	m.exports.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

func classify(err error) (outcome, status string) {
	if err == nil {
		return OutcomeSuccess, "2xx"
	}
	var re *triage.RequestError
	if errors.As(err, &re) && re.StatusCode != 0 {
		return OutcomeError, strconv.Itoa(re.StatusCode)
	}
	return OutcomeError, "transport"
}

var _ triage.Observer = (*Metrics)(nil)
