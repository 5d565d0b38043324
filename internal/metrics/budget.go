package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensUsed tracks the tokens consumed per provider completion call.
	TokensUsed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "tokens_used_total",
			Help:      "Total number of tokens consumed",
		},
		[]string{"direction"}, // input, output
	)

	// ProviderCalls tracks completion calls against the monthly call budget.
	ProviderCalls = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "provider_calls_total",
			Help:      "Total number of provider completion calls",
		},
	)

	// BudgetExceeded tracks how often a call was refused for being over
	// the monthly budget.
	BudgetExceeded = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "exceeded_total",
			Help:      "Total number of provider calls refused for exceeding the monthly budget",
		},
	)
)
