package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		checkoutsTotal,
		gatewayRequestsTotal,
		gatewayLatency,
		reconcileTotal,
		purchasesAbandonedTotal,
		rateLimitedTotal,
	)
}

var (
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout submissions by result.",
		},
		[]string{"result"}, // redirected|validation|config|gateway|persistence
	)

	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_requests_total",
			Help: "Payment link creation calls by gateway and result.",
		},
		[]string{"gateway", "result"}, // ok|rejected|timeout|error
	)

	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_duration_seconds",
			Help:    "Latency of payment link creation calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"gateway"},
	)

	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_total",
			Help: "Confirmation events by outcome.",
		},
		[]string{"outcome"}, // completed|duplicate|clash|paid_after_failure|not_found|error
	)

	purchasesAbandonedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchases_abandoned_total",
			Help: "Pending purchases marked failed by the abandonment sweeper.",
		},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_rate_limited_total",
			Help: "Checkout submissions rejected by the rate limiter.",
		},
	)
)

func IncCheckout(result string) {
	checkoutsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveGatewayCall(gateway, result string, d time.Duration) {
	gatewayRequestsTotal.WithLabelValues(norm(gateway), norm(result)).Inc()
	gatewayLatency.WithLabelValues(norm(gateway)).Observe(d.Seconds())
}

func IncReconcile(outcome string) {
	reconcileTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddPurchasesAbandoned(n int) {
	purchasesAbandonedTotal.Add(float64(n))
}

func IncRateLimited() {
	rateLimitedTotal.Inc()
}
