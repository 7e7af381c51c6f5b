package orderflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderflow_orders_created_total",
			Help: "Total number of orders placed through the conversation flow",
		},
	)

	InvoicesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_invoices_total",
			Help: "Total number of invoice dispatches by outcome",
		},
		[]string{"result"}, // sent, fallback
	)
)
