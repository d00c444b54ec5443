package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DepositCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinvault",
			Name:      "deposit_credited_total",
			Help:      "Total number of deposits credited to user balances.",
		},
		[]string{"currency"},
	)

	DepositExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinvault",
			Name:      "deposit_expired_total",
			Help:      "Total number of deposits expired without credit.",
		},
		[]string{"currency"},
	)

	DepositErroredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinvault",
			Name:      "deposit_errored_total",
			Help:      "Total number of deposits moved to terminal error state.",
		},
		[]string{"currency"},
	)

	OracleErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinvault",
			Name:      "oracle_error_total",
			Help:      "Total number of confirmation oracle errors.",
		},
		[]string{"currency", "kind"}, // kind: transient/rate_limited/permanent
	)

	CycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coinvault",
			Name:      "confirmation_cycle_duration_seconds",
			Help:      "Duration of one deposit confirmation cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ClaimedBatchSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coinvault",
			Name:      "claimed_batch_size",
			Help:      "Number of deposits claimed in the last cycle.",
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		DepositCreditedTotal,
		DepositExpiredTotal,
		DepositErroredTotal,
		OracleErrorTotal,
		CycleDurationSeconds,
		ClaimedBatchSize,
	)
}
