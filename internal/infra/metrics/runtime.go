package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo, dbPoolConnections, catalogCacheRequestsTotal) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Always 1; labels carry the running build.",
		},
		[]string{"version", "commit", "go_version"},
	)

	dbPoolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // total|idle|acquired
	)

	catalogCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Plan catalog cache lookups by result.",
		},
		[]string{"cache", "result"}, // result: hit|miss|error
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(norm(version), norm(commit), runtime.Version()).Set(1)
}

func SetDBPoolStats(total, idle, acquired int32) {
	dbPoolConnections.WithLabelValues("total").Set(float64(total))
	dbPoolConnections.WithLabelValues("idle").Set(float64(idle))
	dbPoolConnections.WithLabelValues("acquired").Set(float64(acquired))
}

func IncCacheRequest(cacheName, result string) {
	catalogCacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}
