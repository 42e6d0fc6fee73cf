// Package metrics exposes command and connection counters to Prometheus.
//
// Every method is safe on a nil *Metrics, so callers can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcbridge"

// durationBuckets in seconds, from 50us to 1s
var durationBuckets = []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}

type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	connsCurrent    prometheus.Gauge
	connsTotal      prometheus.Counter
	breakerState    prometheus.Gauge
}

// New ... Builds the collectors on a private registry, with the Go and process collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands dispatched, by operation and outcome",
			},
			[]string{"op", "outcome"},
		),

		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time spent dispatching a command, backend call included",
				Buckets:   durationBuckets,
			},
			[]string{"op"},
		),

		connsCurrent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connections_current",
				Help:      "Open client connections",
			},
		),

		connsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Client connections accepted since start",
			},
		),

		breakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Backend circuit breaker state (0 closed, 1 open, 2 half open)",
			},
		),
	}

	registry.MustRegister(
		m.commandsTotal,
		m.commandDuration,
		m.connsCurrent,
		m.connsTotal,
		m.breakerState,
	)

	return m
}

func (m *Metrics) ObserveCommand(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(op, outcome).Inc()
	m.commandDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connsCurrent.Inc()
	m.connsTotal.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connsCurrent.Dec()
}

func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(state))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler ... Scrape endpoint, 503 when metrics are disabled
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics disabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
