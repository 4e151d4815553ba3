package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the session service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	sessionsStarted   prometheus.Counter
	sessionsEnded     prometheus.Counter
	eventsAppended    *prometheus.CounterVec
	captionsPublished prometheus.Counter
	rateLimited       prometheus.Counter
	wsClients         prometheus.Gauge
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridiron",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridiron",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridiron",
			Name:      "sessions_started_total",
			Help:      "Broadcast sessions created",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridiron",
			Name:      "sessions_ended_total",
			Help:      "Broadcast sessions ended",
		}),
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridiron",
			Name:      "events_appended_total",
			Help:      "Events appended to session logs",
		}, []string{"type"}),
		captionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridiron",
			Name:      "captions_published_total",
			Help:      "Caption chunks published",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridiron",
			Name:      "http_rate_limited_total",
			Help:      "Mutations rejected by the per-session rate limiter",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridiron",
			Name:      "ws_clients",
			Help:      "Current connected WebSocket clients",
		}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.sessionsStarted,
		m.sessionsEnded,
		m.eventsAppended,
		m.captionsPublished,
		m.rateLimited,
		m.wsClients,
	)
	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records timing and status information.
func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

func (m *Metrics) IncSessionsStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) IncSessionsEnded() {
	if m == nil {
		return
	}
	m.sessionsEnded.Inc()
}

func (m *Metrics) IncEvents(eventType string) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncCaptions() {
	if m == nil {
		return
	}
	m.captionsPublished.Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// AddWSClients adjusts the WebSocket client gauge by delta.
func (m *Metrics) AddWSClients(delta float64) {
	if m == nil {
		return
	}
	m.wsClients.Add(delta)
}
