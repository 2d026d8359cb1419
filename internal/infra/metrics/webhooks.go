package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		webhookSignatureChecksTotal,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook deliveries by event name and handling result (accepted/duplicate/ignored/rejected).",
		},
		[]string{"event", "result"},
	)

	webhookSignatureChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_signature_checks_total",
			Help: "Webhook signature verifications by result (valid/invalid/skipped).",
		},
		[]string{"result"},
	)
)

func IncWebhookEvent(event, result string) {
	webhookEventsTotal.WithLabelValues(norm(event), norm(result)).Inc()
}

func IncSignatureCheck(result string) {
	webhookSignatureChecksTotal.WithLabelValues(norm(result)).Inc()
}
