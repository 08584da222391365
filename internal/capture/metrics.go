package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level so multiple Recorder instances (tests included) share one
// registration against the default registry.
var (
	capturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trail_capture_events_total",
		Help: "Audit events persisted, by category and status.",
	}, []string{"category", "status"})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trail_capture_dropped_total",
		Help: "Audit events dropped because the queue was full or storage was unavailable.",
	})

	invalidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trail_capture_invalid_total",
		Help: "Audit events rejected at validation.",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trail_capture_queue_depth",
		Help: "Events currently waiting in the capture queue.",
	})
)
