package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DIDResolutions tracks DID document resolutions, split by whether they
	// were served from cache.
	DIDResolutions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Total number of DID document resolutions",
		},
		[]string{"outcome"}, // cache_hit, cache_miss, error
	)

	// ResolutionDuration tracks how long a resolution takes end to end.
	ResolutionDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolution_duration_seconds",
			Help:      "DID document resolution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3.3s
		},
	)
)
