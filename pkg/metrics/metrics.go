// Package metrics provides Prometheus metrics for the telemetry pipeline.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick results.
const (
	TickOK      = "ok"
	TickFailed  = "failed"
	TickDropped = "dropped"
)

// Manager owns every collector. A nil *Manager is valid and records nothing,
// so components can run without metrics.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	pollTicks         *prometheus.CounterVec
	tickLatency       prometheus.Histogram
	statusTransitions *prometheus.CounterVec
	connected         prometheus.Gauge
	standingsSize     prometheus.Gauge

	breakerState    *prometheus.GaugeVec
	breakerRequests *prometheus.CounterVec

	notifications *prometheus.CounterVec
	wsClients     prometheus.Gauge
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the tick latency histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRegistry registers the collectors on r instead of a private registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "racedirector",
		buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.pollTicks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "poller",
		Name:      "ticks_total",
		Help:      "Poll ticks by result",
	}, []string{"result"})

	m.tickLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "poller",
		Name:      "tick_duration_seconds",
		Help:      "Time spent fetching and normalizing one tick",
		Buckets:   m.buckets,
	})

	m.statusTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "connection",
		Name:      "transitions_total",
		Help:      "Connection status transitions by target status",
	}, []string{"status"})

	m.connected = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "connection",
		Name:      "connected",
		Help:      "1 while the simulator connection is CONNECTED",
	})

	m.standingsSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "state",
		Name:      "standings_entries",
		Help:      "Entries in the latest published standings",
	})

	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	m.breakerRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "breaker",
		Name:      "requests_total",
		Help:      "Requests through a circuit breaker by result",
	}, []string{"name", "result"})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "notification",
		Name:      "sent_total",
		Help:      "Status notifications by result",
	}, []string{"result"})

	m.wsClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "webserver",
		Name:      "websocket_clients",
		Help:      "Connected websocket clients",
	})
}

func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) RecordTick(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(result).Inc()
	if result != TickDropped {
		m.tickLatency.Observe(d.Seconds())
	}
}

func (m *Manager) RecordStatus(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(strings.ToLower(status)).Inc()
	if status == "CONNECTED" {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Manager) SetStandings(n int) {
	if m == nil {
		return
	}
	m.standingsSize.Set(float64(n))
}

func (m *Manager) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
}

func (m *Manager) RecordBreakerRequest(name, result string) {
	if m == nil {
		return
	}
	m.breakerRequests.WithLabelValues(name, result).Inc()
}

func (m *Manager) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Manager) AddWebsocketClients(delta int) {
	if m == nil {
		return
	}
	m.wsClients.Add(float64(delta))
}
