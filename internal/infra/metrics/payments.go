package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsDegradedTotal,
		gatewayFetchSeconds,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transactions_total",
			Help: "Payment transaction observations by status (pending/paid/failed/refunded/unknown).",
		},
		[]string{"status"},
	)

	paymentsDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_transactions_degraded_total",
			Help: "Transactions recorded without a successful gateway fetch.",
		},
	)

	gatewayFetchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_fetch_seconds",
			Help:    "Gateway session fetch latency, labeled by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func IncDegraded() {
	paymentsDegradedTotal.Inc()
}

func ObserveGatewayFetch(seconds float64, outcome string) {
	gatewayFetchSeconds.WithLabelValues(norm(outcome)).Observe(seconds)
}
