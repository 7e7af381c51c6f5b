package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_ticks_total",
			Help: "Total number of poll ticks by whether they ran",
		},
		[]string{"result"}, // run, skipped
	)

	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_fetch_total",
			Help: "Total number of per-account inbound fetches by outcome",
		},
		[]string{"result"}, // ok, error, open
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_messages_total",
			Help: "Total number of fetched inbound items by outcome",
		},
		[]string{"result"}, // new, duplicate, discarded, error
	)
)
