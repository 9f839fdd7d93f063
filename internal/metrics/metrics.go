// Package metrics exposes Prometheus instrumentation for ledger
// operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settleup_ledger_operations_total",
		Help: "Ledger mutations by operation and outcome.",
	}, []string{"op", "outcome"})

	ledgerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settleup_ledger_operation_seconds",
		Help:    "Duration of ledger mutations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// Recalculations counts full group balance rebuilds.
	Recalculations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settleup_recalculations_total",
		Help: "Full group balance rebuilds.",
	})
)

// ObserveOp records one ledger mutation with its duration and outcome.
func ObserveOp(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ledgerOps.WithLabelValues(op, outcome).Inc()
	ledgerOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
