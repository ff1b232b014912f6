package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_rate_limit_decisions_total",
		Help: "Order rate limit decisions by deciding rule",
	},
	[]string{"reason"},
)
