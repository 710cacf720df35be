package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() { register(purchasesTotal, paymentsRevenueTotal) }

var (
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Purchase lifecycle events by status.",
		},
		[]string{"status"}, // initiated|gateway_error|completed|failed
	)

	// Revenue is counted once per completed purchase, never on duplicates.
	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Value of completed purchases by currency.",
		},
		[]string{"currency"},
	)
)

func IncPayment(status string) {
	purchasesTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(amount.InexactFloat64())
}
