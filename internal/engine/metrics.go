// Package engine – Prometheus instrumentation for event dispatch.
//
// Labels are chosen with bounded cardinality in mind:
//
//   - kind:    the transport event kind (message/callback/contact/location)
//   - handler: the routed handler name (a small fixed set)
//   - outcome: "ok", "error", or "throttled"
package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// eventsTotal counts handled events by kind, routed handler, and outcome.
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_events_total",
			Help: "Total number of inbound events handled.",
		},
		[]string{"kind", "handler", "outcome"},
	)

	// eventLatency records handler duration in seconds by handler.
	eventLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_event_duration_seconds",
			Help:    "Duration of event handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	// eventsInflight gauges the number of events currently being processed.
	eventsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_events_inflight",
			Help: "Current number of in-flight events.",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, eventLatency, eventsInflight)
}

// observe records one handled event.
func observe(kind, handler, outcome string, start time.Time) {
	eventsTotal.WithLabelValues(kind, handler, outcome).Inc()
	eventLatency.WithLabelValues(handler).Observe(time.Since(start).Seconds())
}
