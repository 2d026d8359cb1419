package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(cacheRequestsTotal)
}

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Read-through cache lookups by cache and result (hit|miss|bypass|error).",
	},
	[]string{"cache", "result"},
)

func IncCacheRequest(cache, res string) {
	cacheRequestsTotal.WithLabelValues(norm(cache), norm(res)).Inc()
}
