package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionDecisions tracks the outcome of every inbound-message
	// admission check, labeled by the rule that decided it.
	AdmissionDecisions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "admission_decisions_total",
			Help:      "Total number of inbound message admission decisions",
		},
		[]string{"decision", "reason"}, // approved/rejected/pending_review, blocked_peer/dnd/trust/maturity/...
	)

	// PendingDepth reports the current size of the human-review pending set.
	PendingDepth = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending_depth",
			Help:      "Number of threads currently awaiting human review",
		},
	)

	// CorrectionsLogged tracks how many human corrections have been recorded.
	CorrectionsLogged = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "corrections_total",
			Help:      "Total number of human corrections logged",
		},
	)

	// PatternExtractions tracks how many times the correction cadence
	// triggered a pattern-extraction pass.
	PatternExtractions = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pattern_extractions_total",
			Help:      "Total number of pattern-extraction passes triggered",
		},
	)
)
