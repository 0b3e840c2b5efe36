package sql

import (
	"sync"

	"github.com/bsv-blockchain/richlist/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusSQLDuration *prometheus.HistogramVec
	prometheusSQLErrors   *prometheus.CounterVec
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusSQLDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "richlist",
			Subsystem: "sql_store",
			Name:      "duration_seconds",
			Help:      "Duration of rich list store operations",
			Buckets:   util.MetricsBucketsQuery,
		},
		[]string{"operation"},
	)

	prometheusSQLErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "richlist",
			Subsystem: "sql_store",
			Name:      "errors",
			Help:      "Number of failed rich list store operations",
		},
		[]string{"operation"},
	)
}
