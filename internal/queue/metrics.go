package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery queue metrics. Credential labels carry the masked credential.
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deliveryqueue_pending",
			Help: "Number of pending outbound messages per credential",
		},
		[]string{"credential"},
	)

	MessagesEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deliveryqueue_enqueued_total",
			Help: "Total number of outbound messages enqueued",
		},
	)

	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveryqueue_messages_total",
			Help: "Total number of send outcomes by status",
		},
		[]string{"status"}, // sent, retried, dropped
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deliveryqueue_send_duration_seconds",
			Help:    "Duration of gateway send attempts",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveryqueue_dead_letters_total",
			Help: "Total number of messages dropped to the dead-letter sink by reason",
		},
		[]string{"reason"},
	)
)
