package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrustAdjustments tracks every trust-score mutation by the direction it
	// moved in.
	TrustAdjustments = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "adjustments_total",
			Help:      "Total number of peer trust score adjustments",
		},
		[]string{"direction"}, // increase, decrease
	)

	// GossipPeersShared tracks how many peer entries were handed out in a
	// single gossip payload.
	GossipPeersShared = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "gossip_peers_shared",
			Help:      "Number of peers included in an outbound gossip payload",
			Buckets:   prometheus.LinearBuckets(0, 2, 11), // 0..20
		},
	)

	// GossipPeersMerged tracks how many peers a gossip merge actually added.
	GossipPeersMerged = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "gossip_peers_merged_total",
			Help:      "Total number of previously-unknown peers learned via gossip",
		},
	)
)
