package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsDecided = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_saga_payment_gateway",
			Name:      "decisions_total",
			Help:      "Payment decisions by outcome",
		},
		[]string{"status"},
	)

	TransactionPublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_saga_payment_gateway",
			Name:      "publish_failed_total",
			Help:      "Transaction events the channel did not accept",
		},
		[]string{"queue"},
	)

	PublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "order_saga_payment_gateway",
			Name:      "publish_duration_seconds",
			Help:      "Time to get a transaction event accepted by the channel",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue"},
	)
)
