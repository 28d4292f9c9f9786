// Package metrics holds the bridge's Prometheus collectors.
//
// Collectors live on a dedicated registry (not the global default) so tests
// can build independent instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	OutboundCalls   *prometheus.CounterVec
	OutboundDropped *prometheus.CounterVec
	PlatformEvents  *prometheus.CounterVec
	LaunchSignals   *prometheus.CounterVec
	ControlRequests *prometheus.CounterVec
	TopicOps        *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		OutboundCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushbridge",
			Name:      "outbound_calls_total",
			Help:      "Outbound calls delivered to the consumer.",
		}, []string{"method"}),
		OutboundDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushbridge",
			Name:      "outbound_dropped_total",
			Help:      "Outbound calls dropped (queue full or write failure).",
		}, []string{"method"}),
		PlatformEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushbridge",
			Name:      "platform_events_total",
			Help:      "Platform events seen by the bridge, by kind.",
		}, []string{"kind"}),
		LaunchSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushbridge",
			Name:      "launch_signals_total",
			Help:      "Launch/resume signals classified by the bridge.",
		}, []string{"result"}),
		ControlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushbridge",
			Name:      "control_requests_total",
			Help:      "Inbound control requests, by request and status.",
		}, []string{"request", "status"}),
		TopicOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushbridge",
			Name:      "topic_ops_total",
			Help:      "Topic subscribe/unsubscribe calls to the control plane.",
		}, []string{"op", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushbridge",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"path", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pushbridge",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OutboundCalls,
		m.OutboundDropped,
		m.PlatformEvents,
		m.LaunchSignals,
		m.ControlRequests,
		m.TopicOps,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// The helpers below are nil-safe so components can run without metrics.

func (m *Metrics) IncOutbound(method string) {
	if m != nil {
		m.OutboundCalls.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) IncDropped(method string) {
	if m != nil {
		m.OutboundDropped.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) IncPlatformEvent(kind string) {
	if m != nil {
		m.PlatformEvents.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncLaunch(result string) {
	if m != nil {
		m.LaunchSignals.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncControl(request, status string) {
	if m != nil {
		m.ControlRequests.WithLabelValues(request, status).Inc()
	}
}

func (m *Metrics) IncTopic(op, result string) {
	if m != nil {
		m.TopicOps.WithLabelValues(op, result).Inc()
	}
}

func (m *Metrics) ObserveHTTP(path, method, status string, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(path, method, status).Inc()
		m.HTTPDuration.WithLabelValues(path, method, status).Observe(d.Seconds())
	}
}
