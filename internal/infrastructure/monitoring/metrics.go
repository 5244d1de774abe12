package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so domain packages can be built without it in tests.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Panel metrics
	PanelsEnabled prometheus.Gauge
	PanelsTotal   prometheus.Gauge

	// Layout metrics
	LayoutPasses  prometheus.Counter
	ScrollOffset  prometheus.Gauge
	ScrollMaximum prometheus.Gauge

	// Broadcast metrics
	BroadcastTargets  *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
	AttachAttempts    *prometheus.CounterVec

	// Persistence metrics
	PersistWrites *prometheus.CounterVec

	// DevTools metrics
	DevToolsCalls  *prometheus.CounterVec
	DevToolsErrors *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
}

// NewMetrics creates a collector on a private registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwall_http_requests_total",
			Help: "Total number of command surface HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabwall_http_request_duration_seconds",
			Help:    "Command surface request duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 60},
		}, []string{"method", "path"}),

		PanelsEnabled: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabwall_panels_enabled",
			Help: "Number of enabled panels",
		}),
		PanelsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabwall_panels_total",
			Help: "Number of registered panels",
		}),

		LayoutPasses: f.NewCounter(prometheus.CounterOpts{
			Name: "tabwall_layout_passes_total",
			Help: "Layout passes applied to the window",
		}),
		ScrollOffset: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabwall_scroll_offset_pixels",
			Help: "Current horizontal scroll offset",
		}),
		ScrollMaximum: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabwall_scroll_max_pixels",
			Help: "Current maximum horizontal scroll offset",
		}),

		BroadcastTargets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwall_broadcast_targets_total",
			Help: "Broadcast target outcomes",
		}, []string{"site", "outcome"}),
		BroadcastDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabwall_broadcast_duration_seconds",
			Help:    "Wall time of a whole broadcast",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		}),
		AttachAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwall_attach_attempts_total",
			Help: "File attachment attempts by result",
		}, []string{"site", "result"}),

		PersistWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwall_persist_writes_total",
			Help: "Snapshot and panel file writes by result",
		}, []string{"file", "result"}),

		DevToolsCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwall_devtools_calls_total",
			Help: "DevTools protocol calls by method",
		}, []string{"method"}),
		DevToolsErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwall_devtools_errors_total",
			Help: "DevTools protocol call failures by method",
		}, []string{"method"}),

		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabwall_ws_connections",
			Help: "Open observer websocket connections",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwall_ws_messages_total",
			Help: "Observer websocket messages",
		}, []string{"direction", "type"}),
	}
}

// RecordHTTPRequest records one command surface request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetPanels records registry sizes.
func (m *Metrics) SetPanels(total, enabled int) {
	if m == nil {
		return
	}
	m.PanelsTotal.Set(float64(total))
	m.PanelsEnabled.Set(float64(enabled))
}

// RecordLayout records a layout pass.
func (m *Metrics) RecordLayout(offset float64, maxScroll int) {
	if m == nil {
		return
	}
	m.LayoutPasses.Inc()
	m.ScrollOffset.Set(offset)
	m.ScrollMaximum.Set(float64(maxScroll))
}

// RecordBroadcastTarget records the outcome of one target.
func (m *Metrics) RecordBroadcastTarget(site, outcome string) {
	if m == nil {
		return
	}
	m.BroadcastTargets.WithLabelValues(site, outcome).Inc()
}

// ObserveBroadcast records the duration of a broadcast.
func (m *Metrics) ObserveBroadcast(d time.Duration) {
	if m == nil {
		return
	}
	m.BroadcastDuration.Observe(d.Seconds())
}

// RecordAttach records a file attachment attempt.
func (m *Metrics) RecordAttach(site, result string) {
	if m == nil {
		return
	}
	m.AttachAttempts.WithLabelValues(site, result).Inc()
}

// RecordPersist records a file write.
func (m *Metrics) RecordPersist(file string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PersistWrites.WithLabelValues(file, result).Inc()
}

// RecordDevToolsCall records a protocol call.
func (m *Metrics) RecordDevToolsCall(method string, err error) {
	if m == nil {
		return
	}
	m.DevToolsCalls.WithLabelValues(method).Inc()
	if err != nil {
		m.DevToolsErrors.WithLabelValues(method).Inc()
	}
}

// RecordWSMessage records a websocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments open websocket connections.
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements open websocket connections.
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
