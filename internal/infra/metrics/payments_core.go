package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentSessionsTotal,
		paymentsTotal,
		paymentsRevenueTotal,
		gatewayRequestsTotal,
	)
}

var (
	paymentSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sessions_total",
			Help: "Payment session transitions by resulting status.",
		},
		[]string{"status"},
	)

	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment confirmations by rail and outcome.",
		},
		[]string{"method", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total value of successful payments, labeled by currency (XTR for Stars).",
		},
		[]string{"currency"},
	)

	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Card gateway API calls by operation and result.",
		},
		[]string{"op", "result"},
	)
)

func IncSession(status string) {
	paymentSessionsTotal.WithLabelValues(norm(status)).Inc()
}

func IncPayment(method, status string) {
	paymentsTotal.WithLabelValues(norm(method), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount float64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(amount)
}

func ObserveGateway(op string, err error) {
	gatewayRequestsTotal.WithLabelValues(norm(op), result(err)).Inc()
}
