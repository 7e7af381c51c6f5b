package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var RoutesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orchestrator_routes_total",
		Help: "Total number of inbound messages by the flow that handled them",
	},
	[]string{"route"},
)
