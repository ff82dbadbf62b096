package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the recorder
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	DataPointsTotal prometheus.Counter

	// Archive metrics
	DocumentsWritten   prometheus.Counter
	DocumentWriteError prometheus.Counter
	AllocatorCollision prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "magpie_connections_active",
				Help: "Number of currently open client connections",
			},
		),
		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "magpie_connections_total",
				Help: "Total number of accepted client connections",
			},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "magpie_sessions_active",
				Help: "Number of currently live recording sessions",
			},
		),
		SessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "magpie_sessions_started_total",
				Help: "Total number of recording sessions started",
			},
		),
		SessionsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magpie_sessions_ended_total",
				Help: "Total number of recording sessions ended",
			},
			[]string{"trigger"},
		),
		DataPointsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "magpie_data_points_total",
				Help: "Total number of accepted telemetry data points",
			},
		),

		DocumentsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "magpie_documents_written_total",
				Help: "Total number of session documents persisted",
			},
		),
		DocumentWriteError: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "magpie_document_write_errors_total",
				Help: "Total number of failed session document writes",
			},
		),
		AllocatorCollision: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "magpie_allocator_collisions_total",
				Help: "Total number of file name collisions detected at write time",
			},
		),
	}

	m.registerMetrics()

	return m
}

// EndTrigger labels for SessionsEnded
const (
	EndTriggerRequest  = "request"
	EndTriggerSweep    = "sweep"
	EndTriggerShutdown = "shutdown"
)

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ConnectionsActive)
	m.registry.MustRegister(m.ConnectionsTotal)
	m.registry.MustRegister(m.SessionsActive)
	m.registry.MustRegister(m.SessionsStarted)
	m.registry.MustRegister(m.SessionsEnded)
	m.registry.MustRegister(m.DataPointsTotal)
	m.registry.MustRegister(m.DocumentsWritten)
	m.registry.MustRegister(m.DocumentWriteError)
	m.registry.MustRegister(m.AllocatorCollision)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
