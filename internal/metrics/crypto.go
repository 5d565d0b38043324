package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignOperations tracks message-signing operations.
	SignOperations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crypto",
			Name:      "sign_total",
			Help:      "Total number of message signatures produced",
		},
	)

	// VerifyOperations tracks signature-verification outcomes.
	VerifyOperations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crypto",
			Name:      "verify_total",
			Help:      "Total number of signature verifications",
		},
		[]string{"result"}, // valid, invalid, stale, unresolvable
	)

	// VerifyDuration tracks how long signature verification takes, including
	// the DID resolution it depends on.
	VerifyDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "crypto",
			Name:      "verify_duration_seconds",
			Help:      "Signature verification duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~820ms
		},
	)
)
