// Package metrics exposes the service's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicetasks"

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	items         *prometheus.CounterVec
	truncated     prometheus.Counter
	invitations   *prometheus.CounterVec
	sinkPushes    *prometheus.CounterVec
	ledgerEntries prometheus.Counter
}

// New creates the collectors and registers them with the Go and process
// collectors on a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Handled requests by kind and outcome code.",
		}, []string{"kind", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of voice pipeline stages.",
			Buckets:   []float64{.005, .05, .25, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_items_total",
			Help:      "Extracted action items by priority and link result.",
		}, []string{"priority", "link"}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_truncated_total",
			Help:      "Analysis replies that exceeded the item cap.",
		}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_events_total",
			Help:      "Access gate events.",
		}, []string{"event"}),
		sinkPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_sink_pushes_total",
			Help:      "Calendar events pushed to sinks by result.",
		}, []string{"sink", "result"}),
		ledgerEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Entries appended to the audit ledger.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.stageDuration, m.items, m.truncated,
		m.invitations, m.sinkPushes, m.ledgerEntries,
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Request counts a handled request. outcome is "ok" or an error code.
func (m *Metrics) Request(kind, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
}

// Stage observes how long a pipeline stage took.
func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Item counts an action item; linked is false when its link failed.
func (m *Metrics) Item(priority string, linked bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !linked {
		result = "failed"
	}
	m.items.WithLabelValues(priority, result).Inc()
}

// Truncated counts a capped analysis reply.
func (m *Metrics) Truncated() {
	if m == nil {
		return
	}
	m.truncated.Inc()
}

// AccessEvent counts a gate event such as "invitation.issued".
func (m *Metrics) AccessEvent(event string) {
	if m == nil {
		return
	}
	m.invitations.WithLabelValues(event).Inc()
}

// SinkPush counts a push to an event sink.
func (m *Metrics) SinkPush(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.sinkPushes.WithLabelValues(sink, result).Inc()
}

// LedgerEntry counts an appended ledger entry.
func (m *Metrics) LedgerEntry() {
	if m == nil {
		return
	}
	m.ledgerEntries.Inc()
}
