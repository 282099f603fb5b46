package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pixelstorm.engine")

var (
	// transactionsTotal counts finished transactions by outcome.
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelstorm_transactions_total",
		Help: "Finished transactions by outcome",
	}, []string{"outcome"})

	// transactionSteps tracks how many commands a committed transaction held.
	transactionSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pixelstorm_transaction_steps",
		Help:    "Number of commands per committed transaction",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	// navigationTotal counts history navigation by kind and result.
	navigationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelstorm_history_navigation_total",
		Help: "Undo, redo and move operations by result",
	}, []string{"op", "result"})

	// historyBytes tracks the retained history size of the last document touched.
	historyBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pixelstorm_history_bytes",
		Help: "Estimated bytes retained by undo history",
	})

	// evictedTotal counts history entries dropped to stay within limits.
	evictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixelstorm_history_evicted_total",
		Help: "History entries evicted by the memory or entry limit",
	})

	// rollbackFailures counts rollbacks that left a document inconsistent.
	rollbackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixelstorm_rollback_failures_total",
		Help: "Rollbacks that failed and left the document inconsistent",
	})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
