package deposit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NoticesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_notices_total",
			Help: "Total number of messages offered to the deposit pipeline by outcome",
		},
		[]string{"result"}, // not_deposit, clarify, duplicate, recorded, error
	)

	ReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_reviews_total",
			Help: "Total number of deposit reviews by resulting status",
		},
		[]string{"status"},
	)
)
