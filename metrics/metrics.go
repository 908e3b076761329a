// Package metrics registers the prometheus counters and histograms the
// cache, queue, and decode layers report through, following the same
// direct client_golang registration style as qrank's webserver metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wsicore",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Tile cache lookups that found a ready entry.",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wsicore",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Tile cache lookups that found nothing cached or in flight.",
	})
	CacheUsedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsicore",
		Subsystem: "cache",
		Name:      "used_bytes",
		Help:      "Current tile cache occupancy in bytes.",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsicore",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Tasks submitted but not yet completed.",
	})
	TasksSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wsicore",
		Subsystem: "queue",
		Name:      "submitted_total",
		Help:      "Decode tasks submitted to the worker pool.",
	})

	DecodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wsicore",
		Subsystem: "decode",
		Name:      "duration_seconds",
		Help:      "Per-tile decode latency by backend.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsicore",
		Subsystem: "decode",
		Name:      "errors_total",
		Help:      "Decode task failures by error kind.",
	}, []string{"kind"})
)

// MustRegister registers every collector in this package against the
// default registry; callers that want an isolated registry should
// register these collectors themselves instead of calling this.
func MustRegister() {
	prometheus.MustRegister(
		CacheHits, CacheMisses, CacheUsedBytes,
		QueueDepth, TasksSubmitted,
		DecodeDuration, DecodeErrors,
	)
}

// ObserveDecode records one completed decode's latency for backend
// ("tiff", "isyntax", "openslide", "simple").
func ObserveDecode(backend string, start time.Time) {
	DecodeDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}
