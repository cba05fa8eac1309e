// Package telemetry exposes the cluster's Prometheus metrics: HTTP
// latency, order/cancel/fill throughput, routing behaviour, and the size of
// the in-memory tables the actor owns.
package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_orders_total",
			Help: "Total number of orders submitted, by symbol and origin",
		},
		[]string{"symbol", "origin"},
	)

	FillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_fills_total",
			Help: "Total number of fills produced, by symbol",
		},
		[]string{"symbol"},
	)

	CancelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_cancels_total",
			Help: "Total number of cancel requests, by outcome",
		},
		[]string{"outcome"},
	)

	RoutedOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_routed_orders_total",
			Help: "Total number of orders single-hop routed to another engine",
		},
		[]string{"destination"},
	)

	ForwardedCancelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_forwarded_cancels_total",
			Help: "Total number of cancels single-hop forwarded to the owning engine",
		},
		[]string{"destination"},
	)

	OrderBookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exchange_orderbook_depth",
			Help: "Current number of resting price levels, capped at the snapshot depth",
		},
		[]string{"symbol", "side"},
	)

	ActiveOrderTableSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exchange_active_order_table_size",
			Help: "Current number of live entries in this engine's active-order table",
		},
	)

	AdvisoryUpdatesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_advisory_updates_dropped_total",
			Help: "Total number of stale/out-of-order advisory orderbook broadcasts dropped",
		},
		[]string{"symbol"},
	)
)

// GinMiddleware records request-latency metrics for every HTTP route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration)
	}
}
