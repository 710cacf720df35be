package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminActionsTotal) }

var adminActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_actions_total",
		Help: "Tracks attempts to use admin endpoints.",
	},
	[]string{"action", "status"}, // status: 'authorized', 'unauthorized', 'error'
)

func IncAdminAction(action, status string) {
	adminActionsTotal.WithLabelValues(norm(action), norm(status)).Inc()
}
