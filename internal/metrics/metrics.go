// Package metrics registers the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splitledger"

var (
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of RPC requests",
		},
		[]string{"procedure", "code"},
	)
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Duration of RPC requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"procedure"},
	)
	ObligationsMaterialized = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "obligations_materialized_total",
			Help:      "Recurring obligations created by the materializer",
		},
	)
	MaterializationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materialization_failures_total",
			Help:      "Recurrence periods that failed to commit and will be retried",
		},
	)
	ConsistencyErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_errors_total",
			Help:      "Group computations that failed closed on a broken ledger invariant",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
