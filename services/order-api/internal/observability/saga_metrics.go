package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SagaTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_saga",
			Name:      "state_transitions_total",
			Help:      "Saga state transitions by target state",
		},
		[]string{"state"},
	)

	SagaOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_saga",
			Name:      "outcomes_total",
			Help:      "Completed sagas by final stage and failure kind (success for none)",
		},
		[]string{"stage", "kind"},
	)

	SagaDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "order_saga",
			Name:      "duration_seconds",
			Help:      "End-to-end place order latency",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
