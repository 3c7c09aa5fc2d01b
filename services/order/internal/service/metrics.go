package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status change attempts by target status and outcome",
		},
		[]string{"to", "outcome"},
	)

	orderRestockFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "order_restock_failures_total",
			Help: "Order lines whose restock notification failed",
		},
	)

	ordersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders placed",
		},
	)
)
