package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_calls_total",
			Help: "Total number of AI provider calls by outcome",
		},
		[]string{"provider", "operation", "result"},
	)

	FailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_failovers_total",
			Help: "Total number of active AI provider switches after a failed call",
		},
		[]string{"from", "to"},
	)
)
