// Package monitoring exposes Prometheus metrics for the terminal backend.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsReaped  prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// PTY metrics
	PTYBytesRead    prometheus.Counter
	PTYBytesWritten prometheus.Counter

	// Interpreter metrics
	ExecCommands *prometheus.CounterVec

	startTime time.Time
	Uptime    prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webterm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "webterm_sessions_active",
			Help: "Number of running terminal sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "webterm_sessions_started_total",
			Help: "Total number of sessions spawned",
		}),
		SessionsReaped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "webterm_sessions_reaped_total",
			Help: "Total number of sessions killed by the idle reaper",
		}),

		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "webterm_ws_connections",
			Help: "Number of open WebSocket connections",
		}),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_ws_messages_total",
				Help: "Total WebSocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),

		PTYBytesRead: promauto.NewCounter(prometheus.CounterOpts{
			Name: "webterm_pty_bytes_read_total",
			Help: "Total bytes read from PTYs",
		}),
		PTYBytesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "webterm_pty_bytes_written_total",
			Help: "Total bytes written to PTYs",
		}),

		ExecCommands: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_exec_commands_total",
				Help: "One-shot interpreter commands by builtin name",
			},
			[]string{"command"},
		),
	}

	m.Uptime = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "webterm_uptime_seconds",
		Help: "Server uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
