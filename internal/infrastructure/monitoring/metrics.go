package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so domain code can be constructed without a collector.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Terminal metrics
	TerminalsCreated *prometheus.CounterVec
	TerminalsActive  prometheus.Gauge
	SpawnFailures    prometheus.Counter
	VenvActivations  *prometheus.CounterVec

	// Remote metrics
	ForwardFailures  prometheus.Counter
	RemoteInputBytes prometheus.Counter
	RemoteHosted     prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
}

// NewMetrics creates a collector backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		TerminalsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termd_terminals_created_total",
				Help: "Total number of terminals created",
			},
			[]string{"kind", "location"},
		),
		TerminalsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termd_terminals_active",
				Help: "Number of live terminals in the registry",
			},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termd_terminal_spawn_failures_total",
				Help: "Total number of failed terminal constructions",
			},
		),
		VenvActivations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termd_venv_activations_total",
				Help: "Virtual environment activations by mode",
			},
			[]string{"mode"},
		),

		ForwardFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termd_remote_forward_failures_total",
				Help: "Remote input forwarding loops stopped by a failed request",
			},
		),
		RemoteInputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termd_remote_input_bytes_total",
				Help: "Bytes of terminal input forwarded to remote hosts",
			},
		),
		RemoteHosted: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termd_remote_hosted_terminals",
				Help: "Terminals hosted for remote guests",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termd_ws_connections",
				Help: "Number of active WebSocket attachments",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termd_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTerminalCreated counts a terminal by kind ("shell", "task") and
// location ("local", "remote").
func (m *Metrics) RecordTerminalCreated(kind, location string) {
	if m == nil {
		return
	}
	m.TerminalsCreated.WithLabelValues(kind, location).Inc()
}

// SetTerminalsActive sets the number of live terminals
func (m *Metrics) SetTerminalsActive(count int) {
	if m == nil {
		return
	}
	m.TerminalsActive.Set(float64(count))
}

// IncTerminalsActive counts a terminal going live
func (m *Metrics) IncTerminalsActive() {
	if m == nil {
		return
	}
	m.TerminalsActive.Inc()
}

// DecTerminalsActive counts a terminal being released
func (m *Metrics) DecTerminalsActive() {
	if m == nil {
		return
	}
	m.TerminalsActive.Dec()
}

// IncSpawnFailures counts a failed terminal construction
func (m *Metrics) IncSpawnFailures() {
	if m == nil {
		return
	}
	m.SpawnFailures.Inc()
}

// RecordVenvActivation counts an activation by mode ("script", "env")
func (m *Metrics) RecordVenvActivation(mode string) {
	if m == nil {
		return
	}
	m.VenvActivations.WithLabelValues(mode).Inc()
}

// IncForwardFailures counts a forwarding loop that stopped on error
func (m *Metrics) IncForwardFailures() {
	if m == nil {
		return
	}
	m.ForwardFailures.Inc()
}

// AddRemoteInputBytes counts forwarded input bytes
func (m *Metrics) AddRemoteInputBytes(n int) {
	if m == nil {
		return
	}
	m.RemoteInputBytes.Add(float64(n))
}

// SetRemoteHosted sets the number of terminals hosted for guests
func (m *Metrics) SetRemoteHosted(count int) {
	if m == nil {
		return
	}
	m.RemoteHosted.Set(float64(count))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
