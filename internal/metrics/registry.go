// Package metrics exposes the node's Prometheus counters and histograms:
// signing/verification, DID resolution cache behavior, message admission
// outcomes, trust adjustments, and budget usage.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// namespace prefixes every metric name registered through this package.
const namespace = "anp"

// Registry is the node's own Prometheus registry, kept separate from the
// global default so tests can spin up isolated instances.
var Registry = prometheus.NewRegistry()
