// Package metrics provides Prometheus metrics for ChronoDB.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operation metrics
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronodb_operations_total",
			Help: "Total number of engine operations",
		},
		[]string{"operation", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronodb_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Version lifecycle metrics
	versionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronodb_versions_closed_total",
			Help: "Versions whose transaction_end was set to a concrete timestamp",
		},
		[]string{"collection"},
	)

	successorsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronodb_successors_inserted_total",
			Help: "Successor versions inserted by the mutation protocol",
		},
		[]string{"collection"},
	)

	orphanedCloseRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronodb_orphaned_close_retries_total",
			Help: "Successor insert retries after a persisted close",
		},
	)

	scanYields = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronodb_mutation_scan_yields_total",
			Help: "Cooperative yields taken between documents in multi-document mutations",
		},
	)

	// Retention metrics
	versionsPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronodb_versions_purged_total",
			Help: "Historic versions removed by the retention sweep",
		},
		[]string{"collection"},
	)

	purgeSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chronodb_purge_sweep_duration_seconds",
			Help:    "Duration of retention sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// IPC metrics
	ipcConnectionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronodb_ipc_connections_in_flight",
			Help: "IPC connections currently being handled",
		},
	)

	ipcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronodb_ipc_requests_total",
			Help: "Total IPC requests by command and status",
		},
		[]string{"command", "status"},
	)
)

func RecordOperation(op, status string, duration time.Duration) {
	operationsTotal.WithLabelValues(op, status).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordVersionClosed(collection string) {
	versionsClosed.WithLabelValues(collection).Inc()
}

func RecordSuccessorInserted(collection string) {
	successorsInserted.WithLabelValues(collection).Inc()
}

func RecordOrphanedCloseRetry() {
	orphanedCloseRetries.Inc()
}

func RecordScanYield() {
	scanYields.Inc()
}

func RecordPurged(collection string, count int) {
	versionsPurged.WithLabelValues(collection).Add(float64(count))
}

func RecordPurgeSweep(duration time.Duration) {
	purgeSweepDuration.Observe(duration.Seconds())
}

func IPCConnectionStarted() {
	ipcConnectionsInFlight.Inc()
}

func IPCConnectionEnded() {
	ipcConnectionsInFlight.Dec()
}

func RecordIPCRequest(command, status string) {
	ipcRequestsTotal.WithLabelValues(command, status).Inc()
}
