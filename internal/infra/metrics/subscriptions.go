package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsExpiredTotal,
		subscriptionsByStatus,
		remindersSentTotal,
		schedulerRunsTotal,
		groupOpsTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Subscriptions moved to expired by the scheduler.",
		},
	)

	subscriptionsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_by_status",
			Help: "Store rows per subscription status, refreshed by the daily run.",
		},
		[]string{"status"},
	)

	remindersSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Renewal reminders sent, labeled by lead days.",
		},
		[]string{"days"},
	)

	schedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Lifecycle scheduler runs by result.",
		},
		[]string{"result"},
	)

	groupOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "group_membership_ops_total",
			Help: "Group invite/eviction calls by operation and result.",
		},
		[]string{"op", "result"},
	)
)

func IncSubscriptionExpired() { subscriptionsExpiredTotal.Inc() }

func SetSubscriptionsByStatus(status string, n int) {
	subscriptionsByStatus.WithLabelValues(norm(status)).Set(float64(n))
}

func IncReminder(days int) {
	remindersSentTotal.WithLabelValues(strconv.Itoa(days)).Inc()
}

func IncSchedulerRun(err error) {
	schedulerRunsTotal.WithLabelValues(result(err)).Inc()
}

func IncGroupOp(op string, res string) {
	groupOpsTotal.WithLabelValues(norm(op), norm(res)).Inc()
}
