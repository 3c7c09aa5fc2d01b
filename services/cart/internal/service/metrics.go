package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Cart mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	cartStockWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_stock_clamp_warnings_total",
			Help: "Quantities capped at the stock snapshot",
		},
	)
)
