package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointsledger_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"operation", "status"},
	)

	PointsGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointsledger_points_granted_total",
			Help: "Total points granted across all customers",
		},
	)

	PointsRedeemedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointsledger_points_redeemed_total",
			Help: "Total points redeemed across all customers",
		},
	)

	LockBusyTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pointsledger_lock_busy_total",
			Help: "Number of operations that timed out waiting for a customer row lock",
		},
	)

	ConfigCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pointsledger_config_cache_requests_total",
			Help: "Program config cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

func RecordOperation(operation, status string) {
	LedgerOperationsTotal.WithLabelValues(operation, status).Inc()
}

func RecordPointsGranted(points int64) {
	if points > 0 {
		PointsGrantedTotal.Add(float64(points))
	}
}

func RecordPointsRedeemed(points int64) {
	if points > 0 {
		PointsRedeemedTotal.Add(float64(points))
	}
}

func RecordLockBusy() {
	LockBusyTotal.Inc()
}

func RecordConfigCache(outcome string) {
	ConfigCacheHitsTotal.WithLabelValues(outcome).Inc()
}
