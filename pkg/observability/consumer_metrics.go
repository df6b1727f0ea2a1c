package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transaction consumer outcomes.
const (
	OutcomePersisted     = "persisted"
	OutcomeDuplicate     = "duplicate"
	OutcomeMalformed     = "malformed"
	OutcomeInvalid       = "invalid"
	OutcomePersistFailed = "persist_failed"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_saga_transaction_consumer",
			Name:      "messages_received_total",
			Help:      "Transaction events pulled from the channel",
		},
		[]string{"queue"},
	)

	MessagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_saga_transaction_consumer",
			Name:      "handled_total",
			Help:      "Transaction events by terminal outcome",
		},
		[]string{"queue", "outcome"},
	)

	DLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_saga_transaction_consumer",
			Name:      "dlq_total",
			Help:      "Transaction events sent to the dead-letter sink by reason",
		},
		[]string{"queue", "reason"},
	)

	MessagesLost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_saga_transaction_consumer",
			Name:      "lost_total",
			Help:      "Transaction events removed from the channel without being persisted or dead-lettered",
		},
		[]string{"queue", "reason"},
	)

	ProcessLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "order_saga_transaction_consumer",
			Name:      "process_duration_seconds",
			Help:      "End-to-end processing latency per message",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	InflightMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "order_saga_transaction_consumer",
			Name:      "inflight_messages",
			Help:      "Number of transaction events currently being processed",
		},
	)
)
