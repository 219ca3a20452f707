package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(grantUsersTotal) }

var grantUsersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "monthly_grant_users_total",
		Help: "Users processed by the monthly grant job, labeled by outcome.",
	},
	[]string{"outcome"},
)

func IncGrant(outcome string) {
	grantUsersTotal.WithLabelValues(norm(outcome)).Inc()
}
