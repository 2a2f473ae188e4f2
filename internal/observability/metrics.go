package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	autoClosed      prometheus.Counter
	sessions        prometheus.Gauge
	snapshots       prometheus.Counter
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helpdesk_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_ticket_transitions_total",
				Help: "Committed ticket lifecycle operations by resulting status",
			},
			[]string{"operation", "to"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_ticket_rejections_total",
				Help: "Lifecycle operations rejected by precondition",
			},
			[]string{"operation", "code"},
		),
		assignments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_assignments_total",
				Help: "Automatic assignment outcomes",
			},
			[]string{"outcome"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_notifications_total",
				Help: "Notification writes by type and result",
			},
			[]string{"type", "result"},
		),
		autoClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_tickets_autoclosed_total",
			Help: "Tickets closed by the stale sweeper",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "helpdesk_realtime_sessions",
			Help: "Open push sessions",
		}),
		snapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_realtime_snapshots_total",
			Help: "Snapshots written to push sessions",
		}),
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

func (m *Metrics) RecordTransition(operation, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, to).Inc()
}

func (m *Metrics) RecordRejection(operation, code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordNotification(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "created"
	if !ok {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordAutoClose(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.autoClosed.Add(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) RecordSnapshot() {
	if m == nil {
		return
	}
	m.snapshots.Inc()
}
