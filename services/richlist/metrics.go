package richlist

import (
	"sync"

	"github.com/bsv-blockchain/richlist/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusRichListBlocksApplied     prometheus.Counter
	prometheusRichListBlocksInvalidated prometheus.Counter
	prometheusRichListTicks             *prometheus.CounterVec
	prometheusRichListFatalErrors       *prometheus.CounterVec
	prometheusRichListBestHeight        prometheus.Gauge
	prometheusRichListListRequests      *prometheus.CounterVec
	prometheusRichListApplyBlock        prometheus.Histogram
	prometheusRichListFetchTransactions prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusRichListBlocksApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "richlist",
			Name:      "blocks_applied",
			Help:      "Number of blocks applied to the rich list",
		},
	)

	prometheusRichListBlocksInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "richlist",
			Name:      "blocks_invalidated",
			Help:      "Number of blocks rolled back because they left the node's best chain",
		},
	)

	prometheusRichListTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "richlist",
			Name:      "ticks",
			Help:      "Number of scanner ticks by outcome",
		},
		[]string{"outcome"},
	)

	prometheusRichListFatalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "richlist",
			Name:      "fatal_errors",
			Help:      "Number of ticks that parked the scanner, by error category",
		},
		[]string{"category"},
	)

	prometheusRichListBestHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "richlist",
			Name:      "best_height",
			Help:      "Height of the last applied block",
		},
	)

	prometheusRichListListRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "richlist",
			Name:      "list_requests",
			Help:      "Number of rich list requests by response status",
		},
		[]string{"status"},
	)

	prometheusRichListApplyBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "richlist",
			Name:      "apply_block",
			Help:      "Histogram of applying one block, fetching included",
			Buckets:   util.MetricsBucketsBlock,
		},
	)

	prometheusRichListFetchTransactions = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "richlist",
			Name:      "fetch_transactions",
			Help:      "Histogram of fetching the transactions of one block from the node",
			Buckets:   util.MetricsBucketsQuery,
		},
	)
}
