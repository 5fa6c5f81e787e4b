// Package metrics registers the forwarder's Prometheus collectors on the
// default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posthogfwd_events_enqueued_total",
		Help: "Total number of events placed on the submission queue.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posthogfwd_events_dropped_total",
		Help: "Total number of queued events discarded because the queue was full.",
	})

	InvalidProperties = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posthogfwd_invalid_properties_total",
		Help: "Total number of properties skipped while building events.",
	})

	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posthogfwd_events_delivered_total",
		Help: "Total number of events accepted by the collection endpoint.",
	})

	BatchesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posthogfwd_batches_sent_total",
		Help: "Total number of batches accepted by the collection endpoint.",
	})

	BatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posthogfwd_batches_dropped_total",
		Help: "Total number of batches abandoned after exhausting retries.",
	})

	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posthogfwd_delivery_attempts_total",
		Help: "Total number of delivery requests, labelled by endpoint and status.",
	}, []string{"endpoint", "status"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posthogfwd_delivery_duration_seconds",
		Help:    "Round-trip latency of delivery requests.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "posthogfwd_batch_size_events",
		Help:    "Number of events per drained batch.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})

	// QueueDepth and DispatchState are process-wide. With more than one
	// Forwarder in a process they report whichever one wrote last; the
	// counters above sum across all of them.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "posthogfwd_queue_depth",
		Help: "Current number of events waiting in the submission queue.",
	})

	DispatchState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "posthogfwd_dispatch_state",
		Help: "1 for the dispatch loop's current state, 0 otherwise.",
	}, []string{"state"})
)
