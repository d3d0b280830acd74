package rootchain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusDeposits          prometheus.Counter
	prometheusExitsStarted      prometheus.Counter
	prometheusExitsFinalized    prometheus.Counter
	prometheusExitsCancelled    prometheus.Counter
	prometheusWithdrawals       prometheus.Counter
	prometheusRejections        *prometheus.CounterVec
	prometheusQueueDepth        prometheus.Gauge
	prometheusChildChainBalance prometheus.Gauge
	prometheusSweepSize         prometheus.Histogram

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusDeposits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rootchain_deposits",
			Help: "Number of deposit blocks created",
		},
	)
	prometheusExitsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rootchain_exits_started",
			Help: "Number of exits started",
		},
	)
	prometheusExitsFinalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rootchain_exits_finalized",
			Help: "Number of exits finalized",
		},
	)
	prometheusExitsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rootchain_exits_cancelled",
			Help: "Number of exits dropped unpaid by finalization",
		},
	)
	prometheusWithdrawals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rootchain_withdrawals",
			Help: "Number of non-empty withdrawals paid out",
		},
	)
	prometheusRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rootchain_rejections",
			Help: "Number of rejected calls",
		},
		[]string{
			"function", // operation rejecting the call
			"kind",     // error kind reported to the caller
		},
	)
	prometheusQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rootchain_exit_queue_depth",
			Help: "Number of pending exits in the queue",
		},
	)
	prometheusChildChainBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rootchain_child_chain_balance",
			Help: "Value escrowed for pending and future exits",
		},
	)
	prometheusSweepSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rootchain_finalize_sweep_size",
			Help:    "Exits finalized per sweep",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
}
